package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run connects two users, sends a message from the first to the second and
// waits for the second to receive it.
func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	secret := flag.String("secret", os.Getenv("CHATRELAY_JWT_SECRET"), "JWT secret shared with the gateway")
	from := flag.String("from", "smoke-a", "sending user id")
	to := flag.String("to", "smoke-b", "receiving user id")
	chat := flag.String("chat", "smoke-chat", "chat id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	settle := flag.Duration("settle", 100*time.Millisecond, "wait after connecting before sending")
	flag.Parse()

	if *secret == "" {
		return fmt.Errorf("secret is required (-secret or CHATRELAY_JWT_SECRET)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	jwtCfg := &auth.JWTConfig{Secret: []byte(*secret), TTL: time.Minute}

	sender, err := dial(ctx, *addr, jwtCfg, *from)
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	receiver, err := dial(ctx, *addr, jwtCfg, *to)
	if err != nil {
		return err
	}
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	// The gateway attaches a connection just after the upgrade completes.
	time.Sleep(*settle)

	payload, err := json.Marshal(proto.MessageData{ChatID: *chat, Content: *text, ReceiverID: *to})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := wsjson.Write(ctx, sender, proto.Inbound{Event: proto.InboundMessage, Data: payload}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var out struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, receiver, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received event=%s data=%s\n", out.Event, out.Data)
		if out.Event != proto.OutboundNewMessage {
			continue
		}

		var msg proto.NewMessage
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		if msg.SenderID != *from || msg.Content != *text {
			return fmt.Errorf("unexpected message: %+v", msg)
		}
		fmt.Println("ok")
		return nil
	}
}

func dial(ctx context.Context, addr string, jwtCfg *auth.JWTConfig, userID string) (*websocket.Conn, error) {
	token, err := auth.GenerateToken(jwtCfg, userID)
	if err != nil {
		return nil, fmt.Errorf("token for %s: %w", userID, err)
	}
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", userID, err)
	}
	return conn, nil
}
