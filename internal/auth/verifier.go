package auth

import "context"

// Verifier resolves handshake credentials to user identifiers.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier creates a verifier using the same scheme as the HTTP backend.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify returns the user id carried by credential.
// Every failure wraps ErrAuthentication.
func (v *Verifier) Verify(ctx context.Context, credential string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	claims, err := ValidateToken(v.cfg, credential)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
