package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret: []byte("test-secret-change-me"),
		TTL:    time.Hour,
	}
}

func signMap(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "A")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	userID, err := NewVerifier(cfg).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "A" {
		t.Fatalf("expected user A, got %q", userID)
	}
}

func TestVerifyAcceptsSubjectFallback(t *testing.T) {
	token := signMap(t, "test-secret-change-me", jwt.MapClaims{
		"sub": "user1",
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	userID, err := NewVerifier(testConfig()).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user1" {
		t.Fatalf("expected user1, got %q", userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	cfg := testConfig()

	expired := signMap(t, "test-secret-change-me", jwt.MapClaims{
		"userId": "A",
		"exp":    time.Now().Add(-time.Minute).Unix(),
	})
	wrongSecret := signMap(t, "other-secret", jwt.MapClaims{
		"userId": "A",
		"exp":    time.Now().Add(time.Minute).Unix(),
	})
	noUser := signMap(t, "test-secret-change-me", jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "A"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"no user id", noUser},
		{"alg none", none},
	}

	v := NewVerifier(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := v.Verify(context.Background(), tt.token)
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication, got %v (user %q)", err, userID)
			}
		})
	}
}

func TestVerifyChecksIssuerAndAudience(t *testing.T) {
	issuing := &JWTConfig{Secret: []byte("s"), Issuer: "backend", Audience: "mobile", TTL: time.Minute}
	token, err := GenerateToken(issuing, "A")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewVerifier(issuing).Verify(context.Background(), token); err != nil {
		t.Fatalf("expected matching issuer/audience to pass, got %v", err)
	}

	otherIssuer := &JWTConfig{Secret: []byte("s"), Issuer: "someone-else"}
	if _, err := NewVerifier(otherIssuer).Verify(context.Background(), token); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	otherAudience := &JWTConfig{Secret: []byte("s"), Audience: "web"}
	if _, err := NewVerifier(otherAudience).Verify(context.Background(), token); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestVerifyHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, _ := GenerateToken(testConfig(), "A")
	if _, err := NewVerifier(testConfig()).Verify(ctx, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
