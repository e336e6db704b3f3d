package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/chatrelay/internal/store"
)

func TestGatewayScenarioMessageThenReceiverLeaves(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	b := NewConnection("B", 0)
	g.Attach(a)
	g.Attach(b)

	g.Submit(a, &Command{
		Kind:    CommandSendMessage,
		Message: Message{ChatID: "c1", Content: "hi", ReceiverID: "B"},
	})

	ev := mustEvent(t, b.Events, EventNewMessage)
	if ev.Message.SenderID != "A" || ev.Message.ChatID != "c1" || ev.Message.Content != "hi" || ev.Message.ReceiverID != "B" {
		t.Fatalf("unexpected message event: %+v", ev.Message)
	}
	mustNoEvent(t, b.Events, 50*time.Millisecond)

	g.Detach(b)
	g.Submit(a, &Command{
		Kind:    CommandSendMessage,
		Message: Message{ChatID: "c1", Content: "are you there?", ReceiverID: "B"},
	})
	flush(t, g)

	mustNoEvent(t, a.Events, 50*time.Millisecond)
	mustNoEvent(t, b.Events, 50*time.Millisecond)
}

func TestGatewaySenderCannotBeSpoofed(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	b := NewConnection("B", 0)
	g.Attach(a)
	g.Attach(b)

	g.Submit(a, &Command{
		Kind:    CommandSendMessage,
		Message: Message{ChatID: "c1", Content: "hi", SenderID: "mallory", ReceiverID: "B"},
	})

	ev := mustEvent(t, b.Events, EventNewMessage)
	if ev.Message.SenderID != "A" {
		t.Fatalf("expected sender A, got %q", ev.Message.SenderID)
	}
	if ev.Message.CreatedAt.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestGatewayPresenceFollowsConnectDisconnect(t *testing.T) {
	g, ctx := startGateway(t)

	if g.Online(ctx, "A") {
		t.Fatal("A should start offline")
	}

	for i := 0; i < 3; i++ {
		conn := NewConnection("A", 0)
		g.Attach(conn)
		if !g.Online(ctx, "A") {
			t.Fatalf("round %d: A should be online after connect", i)
		}
		g.Detach(conn)
		if g.Online(ctx, "A") {
			t.Fatalf("round %d: A should be offline after disconnect", i)
		}
	}
}

func TestGatewaySecondConnectWins(t *testing.T) {
	g, ctx := startGateway(t)

	first := NewConnection("A", 0)
	second := NewConnection("A", 0)
	sender := NewConnection("B", 0)
	g.Attach(first)
	g.Attach(second)
	g.Attach(sender)

	g.Submit(sender, &Command{Kind: CommandSendMessage, Message: Message{ChatID: "c1", Content: "x", ReceiverID: "A"}})

	mustEvent(t, second.Events, EventNewMessage)
	mustNoEvent(t, first.Events, 50*time.Millisecond)

	// Any disconnect removes the user, even from the superseded connection.
	g.Detach(first)
	if g.Online(ctx, "A") {
		t.Fatal("A should be offline after the first connection closes")
	}

	// The second connection is still open but no longer routed to.
	g.Submit(sender, &Command{Kind: CommandSendMessage, Message: Message{ChatID: "c1", Content: "y", ReceiverID: "A"}})
	flush(t, g)
	mustNoEvent(t, second.Events, 50*time.Millisecond)

	// Closing it afterwards is harmless.
	g.Detach(second)
	if g.Online(ctx, "A") {
		t.Fatal("A should stay offline")
	}
	if !g.Online(ctx, "B") {
		t.Fatal("B should be unaffected")
	}
}

func TestGatewayReconnectAfterSupersededDisconnect(t *testing.T) {
	g, ctx := startGateway(t)

	first := NewConnection("A", 0)
	second := NewConnection("A", 0)
	g.Attach(first)
	g.Attach(second)
	g.Detach(first)

	third := NewConnection("A", 0)
	g.Attach(third)
	if !g.Online(ctx, "A") {
		t.Fatal("A should be online after reconnecting")
	}
}

func TestGatewayTypingStartAndStop(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	b := NewConnection("B", 0)
	g.Attach(a)
	g.Attach(b)

	g.Submit(a, &Command{Kind: CommandTypingStart, Typing: Typing{ChatID: "c1", ReceiverID: "B"}})
	ev := mustEvent(t, b.Events, EventUserTyping)
	if ev.Typing.ChatID != "c1" || ev.Typing.UserID != "A" {
		t.Fatalf("unexpected typing event: %+v", ev.Typing)
	}

	g.Submit(a, &Command{Kind: CommandTypingStop, Typing: Typing{ChatID: "c1", ReceiverID: "B"}})
	ev = mustEvent(t, b.Events, EventUserStoppedTyping)
	if ev.Typing.UserID != "A" {
		t.Fatalf("unexpected stop typing event: %+v", ev.Typing)
	}

	// Typing towards an offline user is a no-op.
	g.Submit(a, &Command{Kind: CommandTypingStart, Typing: Typing{ChatID: "c2", ReceiverID: "C"}})
	mustNoEvent(t, a.Events, 50*time.Millisecond)
}

func TestGatewayReceiptGoesToOriginalSender(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	b := NewConnection("B", 0)
	g.Attach(a)
	g.Attach(b)

	g.Submit(b, &Command{Kind: CommandReceipt, Receipt: Receipt{
		MessageID: "m1",
		ChatID:    "c1",
		SenderID:  "A",
		Status:    store.MessageStatusRead,
	}})

	ev := mustEvent(t, a.Events, EventMessageStatus)
	if ev.Receipt.MessageID != "m1" || ev.Receipt.ReaderID != "B" || ev.Receipt.Status != store.MessageStatusRead {
		t.Fatalf("unexpected receipt: %+v", ev.Receipt)
	}
}

func TestGatewayPushToUser(t *testing.T) {
	g, _ := startGateway(t)

	b := NewConnection("B", 0)
	g.Attach(b)

	g.PushToUser("B", "newMessage", map[string]string{"content": "hi"})
	ev := mustEvent(t, b.Events, EventPush)
	if ev.Push == nil || ev.Push.Name != "newMessage" {
		t.Fatalf("unexpected push: %+v", ev.Push)
	}

	// Offline and malformed pushes are silent no-ops.
	g.PushToUser("nobody", "newMessage", nil)
	g.PushToUser("", "newMessage", nil)
	g.PushToUser("B", "", nil)
	flush(t, g)
	mustNoEvent(t, b.Events, 50*time.Millisecond)
}

func TestGatewayUnknownCommandReportsError(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	g.Attach(a)
	g.Submit(a, &Command{Kind: CommandKind(42)})

	ev := mustEvent(t, a.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeUnknownEvent {
		t.Fatalf("expected unknown_event error, got %+v", ev)
	}
}

func TestGatewayRecoversFromHandlerPanic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g := NewGateway(nil, nil)
	g.handlers[CommandKind(99)] = func(*Connection, *Command) { panic("boom") }
	go g.Run(ctx)

	a := NewConnection("A", 0)
	b := NewConnection("B", 0)
	g.Attach(a)
	g.Attach(b)

	g.Submit(a, &Command{Kind: CommandKind(99)})
	ev := mustEvent(t, a.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInternal {
		t.Fatalf("expected internal_error, got %+v", ev)
	}
	mustNoEvent(t, b.Events, 50*time.Millisecond)

	// The gateway keeps serving other connections.
	g.Submit(b, &Command{Kind: CommandSendMessage, Message: Message{ChatID: "c1", Content: "still here", ReceiverID: "A"}})
	mustEvent(t, a.Events, EventNewMessage)
}

func TestGatewayDropsWhenQueueFull(t *testing.T) {
	g, _ := startGateway(t)

	a := NewConnection("A", 0)
	b := NewConnection("B", 1)
	g.Attach(a)
	g.Attach(b)

	for i := 0; i < 5; i++ {
		g.Submit(a, &Command{Kind: CommandSendMessage, Message: Message{ChatID: "c1", Content: "spam", ReceiverID: "B"}})
	}
	flush(t, g)

	if got := len(b.Events); got != 1 {
		t.Fatalf("expected exactly one queued event, got %d", got)
	}
}

func TestGatewayStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGateway(nil, nil)
	go g.Run(ctx)

	cancel()
	select {
	case <-g.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}

	// Operations after shutdown must not block.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < opsBuffer+10; i++ {
			g.PushToUser("A", "x", nil)
		}
		if g.Online(context.Background(), "A") {
			t.Error("expected offline after shutdown")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("operations blocked after shutdown")
	}
}
