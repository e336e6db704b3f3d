package http

import (
	"context"
	"database/sql"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/service/delivery"
	"github.com/vovakirdan/chatrelay/internal/store"
	"github.com/vovakirdan/chatrelay/internal/store/sqlite"
)

const (
	testJWTSecret  = "test-secret"
	testPushSecret = "push-secret"
)

const fixtures = `
INSERT INTO chats (id, type) VALUES ('c1', 'individual');
INSERT INTO chat_participants (chat_id, user_id) VALUES ('c1', 'A'), ('c1', 'B');
INSERT INTO messages (id, chat_id, sender_id, receiver_id, content) VALUES ('m1', 'c1', 'A', 'B', 'hi');
`

type testEnv struct {
	server  *httptest.Server
	gateway *core.Gateway
	store   store.Store
	metrics *metrics.Metrics
	jwt     *auth.JWTConfig
	stop    context.CancelFunc
}

// createTestStore creates an in-memory SQLite store with schema and fixtures applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(sqlite.Schema); err != nil {
			return err
		}
		_, err := db.Exec(fixtures)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startTestServer(t *testing.T, configure ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testJWTSecret
	cfg.PushSecret = testPushSecret
	for _, fn := range configure {
		fn(&cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := createTestStore(t)

	gateway := core.NewGateway(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	go gateway.Run(ctx)
	t.Cleanup(cancel)

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}
	server := NewServer(cfg, Deps{
		Gateway:  gateway,
		Verifier: auth.NewVerifier(jwtCfg),
		Delivery: delivery.New(delivery.Options{
			Chats:             st,
			Messages:          st,
			EnforceMembership: cfg.Gateway.EnforceMembership,
		}),
		Metrics:  m,
		Gatherer: reg,
	}, nil)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, gateway: gateway, store: st, metrics: m, jwt: jwtCfg, stop: cancel}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := auth.GenerateToken(e.jwt, userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// dial connects userID and waits until the gateway lists the user as online.
func (e *testEnv) dial(t *testing.T, ctx context.Context, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + e.token(t, userID)}},
	})
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	e.waitOnline(t, userID, true)
	return conn
}

func (e *testEnv) waitOnline(t *testing.T, userID string, want bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		online := e.gateway.Online(ctx, userID)
		cancel()
		if online == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s online=%v not reached", userID, want)
}

// waitSuperseded polls until the gateway has replaced n connections.
func (e *testEnv) waitSuperseded(t *testing.T, n float64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(e.metrics.Superseded) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("superseded count %v not reached", n)
}

// outbound mirrors proto.Outbound with undecoded data.
type outbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func mustRead(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, into any) {
	t.Helper()

	var out outbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read %s: %v", event, err)
	}
	if out.Event != event {
		t.Fatalf("expected event %q, got %q: %s", event, out.Event, out.Data)
	}
	if into != nil {
		if err := json.Unmarshal(out.Data, into); err != nil {
			t.Fatalf("unmarshal %s data: %v", event, err)
		}
	}
}

func mustReadError(t *testing.T, ctx context.Context, conn *websocket.Conn, code string) {
	t.Helper()

	var perr proto.Error
	mustRead(t, ctx, conn, proto.OutboundError, &perr)
	if perr.Code != code {
		t.Fatalf("expected error code %q, got %q (%s)", code, perr.Code, perr.Message)
	}
}
