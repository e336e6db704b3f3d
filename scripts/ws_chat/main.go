package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatrelay/internal/proto"
)

// frame is an outbound envelope with undecoded data.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	token := flag.String("token", "", "JWT for the connecting user (see `chatrelay token`)")
	peer := flag.String("peer", "", "user id to chat with")
	chat := flag.String("chat", "", "chat id the messages belong to")
	flag.Parse()

	if *token == "" || *peer == "" || *chat == "" {
		return errors.New("-token, -peer and -chat are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s, chatting with %s in %s\n", *addr, *peer, *chat)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *chat, *peer)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload})
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch out.Event {
		case proto.OutboundNewMessage:
			var msg proto.NewMessage
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				log.Printf("unmarshal newMessage: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", msg.ChatID, msg.SenderID, msg.Content)
			if msg.MessageID != "" {
				receipt := proto.ReceiptData{MessageID: msg.MessageID, ChatID: msg.ChatID, SenderID: msg.SenderID}
				if err := send(ctx, conn, proto.InboundMessageRead, receipt); err != nil {
					log.Printf("send receipt: %v", err)
				}
			}
		case proto.OutboundUserTyping:
			var typing proto.UserTyping
			if err := json.Unmarshal(out.Data, &typing); err == nil {
				fmt.Printf("[%s] %s is typing...\n", typing.ChatID, typing.UserID)
			}
		case proto.OutboundMessageStatusUpdate:
			var update proto.MessageStatusUpdate
			if err := json.Unmarshal(out.Data, &update); err == nil {
				fmt.Printf("[%s] message %s %s by %s\n", update.ChatID, update.MessageID, update.Status, update.UserID)
			}
		case proto.OutboundError:
			var perr proto.Error
			if err := json.Unmarshal(out.Data, &perr); err == nil {
				fmt.Printf("error %s: %s\n", perr.Code, perr.Message)
			}
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, chat, peer string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			msg := proto.MessageData{ChatID: chat, Content: text, ReceiverID: peer}
			if err := send(ctx, conn, proto.InboundMessage, msg); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
