package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vovakirdan/chatrelay/internal/config"
)

func postPush(t *testing.T, env *testEnv, secret string, body string) *stdhttp.Response {
	t.Helper()

	req, err := stdhttp.NewRequest(stdhttp.MethodPost, env.server.URL+"/internal/push", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("push request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPushRequiresSecret(t *testing.T) {
	env := startTestServer(t)

	body := `{"userId":"A","event":"chatUpdated","data":{}}`
	if resp := postPush(t, env, "", body); resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("missing secret: expected 401, got %d", resp.StatusCode)
	}
	if resp := postPush(t, env, "wrong", body); resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", resp.StatusCode)
	}
}

func TestPushRejectsBadBody(t *testing.T) {
	env := startTestServer(t)

	for _, body := range []string{`not json`, `{"event":"x"}`, `{"userId":"A"}`} {
		if resp := postPush(t, env, testPushSecret, body); resp.StatusCode != stdhttp.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestPushDeliversToConnectedUser(t *testing.T) {
	env := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "A")

	resp := postPush(t, env, testPushSecret, `{"userId":"A","event":"newMessage","data":{"chatId":"c9","content":"from rest"}}`)
	if resp.StatusCode != stdhttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var data map[string]string
	mustRead(t, ctx, conn, "newMessage", &data)
	if data["chatId"] != "c9" || data["content"] != "from rest" {
		t.Fatalf("unexpected push payload: %v", data)
	}

	if got := testutil.ToFloat64(env.metrics.Pushes.WithLabelValues("http")); got != 1 {
		t.Fatalf("expected 1 http push, got %v", got)
	}
}

func TestPushToOfflineUserIsAccepted(t *testing.T) {
	env := startTestServer(t)

	resp := postPush(t, env, testPushSecret, `{"userId":"nobody","event":"chatUpdated"}`)
	if resp.StatusCode != stdhttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "accepted" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestPushDisabledWithoutSecret(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.PushSecret = ""
	})

	resp := postPush(t, env, "", `{"userId":"A","event":"x"}`)
	if resp.StatusCode != stdhttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
