package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/metrics"
)

const opsBuffer = 256

type opKind int

const (
	opAttach opKind = iota
	opDetach
	opCommand
	opPush
	opOnline
)

type op struct {
	kind   opKind
	conn   *Connection
	cmd    *Command
	userID string
	push   *Push
	reply  chan bool
}

type commandHandler func(from *Connection, cmd *Command)

// Gateway tracks which users are reachable and routes events between live connections.
//
// The user-to-connection map is owned by the Run goroutine; every other method only
// enqueues an operation, so the map is never shared. Delivery is best-effort: events
// for offline users and for full outbound queues are dropped. Durability belongs to
// the message store, never to the gateway.
type Gateway struct {
	ops      chan op
	done     chan struct{}
	conns    map[string]*Connection
	handlers map[CommandKind]commandHandler
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

// NewGateway creates a gateway. logger and m may be nil.
func NewGateway(logger *zerolog.Logger, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		ops:     make(chan op, opsBuffer),
		done:    make(chan struct{}),
		conns:   make(map[string]*Connection),
		log:     applog.OrNop(logger),
		metrics: m,
	}
	g.handlers = map[CommandKind]commandHandler{
		CommandSendMessage: g.handleSendMessage,
		CommandTypingStart: g.handleTyping,
		CommandTypingStop:  g.handleTyping,
		CommandReceipt:     g.handleReceipt,
	}
	return g
}

// Run processes operations until ctx is cancelled. It must be called exactly once.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			g.log.Info().Int("online", len(g.conns)).Msg("gateway stopped")
			return
		case o := <-g.ops:
			g.handle(o)
		}
	}
}

// Done is closed once Run returns.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// Attach makes conn the live connection of its user, replacing any previous one.
func (g *Gateway) Attach(conn *Connection) {
	g.enqueue(op{kind: opAttach, conn: conn})
}

// Detach removes conn's user from the presence map, even when a newer
// connection has since replaced conn.
func (g *Gateway) Detach(conn *Connection) {
	g.enqueue(op{kind: opDetach, conn: conn})
}

// Submit routes a command issued by conn.
func (g *Gateway) Submit(conn *Connection, cmd *Command) {
	g.enqueue(op{kind: opCommand, conn: conn, cmd: cmd})
}

// PushToUser delivers a named event to the user's live connection, if any.
// It is fire-and-forget: offline users are a silent no-op.
func (g *Gateway) PushToUser(userID, event string, payload any) {
	if userID == "" || event == "" {
		return
	}
	g.enqueue(op{kind: opPush, userID: userID, push: &Push{Name: event, Payload: payload}})
}

// Online reports whether userID currently has a live connection.
func (g *Gateway) Online(ctx context.Context, userID string) bool {
	reply := make(chan bool, 1)
	if !g.enqueue(op{kind: opOnline, userID: userID, reply: reply}) {
		return false
	}
	select {
	case online := <-reply:
		return online
	case <-ctx.Done():
		return false
	case <-g.done:
		return false
	}
}

func (g *Gateway) enqueue(o op) bool {
	select {
	case g.ops <- o:
		return true
	case <-g.done:
		return false
	}
}

func (g *Gateway) handle(o op) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Int("op", int(o.kind)).Msg("recovered while handling gateway operation")
			if o.conn != nil {
				g.deliver(o.conn, ErrorEvent(ErrCodeInternal, "failed to handle event"))
			}
		}
	}()

	switch o.kind {
	case opAttach:
		g.attach(o.conn)
	case opDetach:
		g.detach(o.conn)
	case opCommand:
		g.dispatch(o.conn, o.cmd)
	case opPush:
		g.route(o.userID, &Event{Kind: EventPush, Push: o.push})
	case opOnline:
		_, ok := g.conns[o.userID]
		o.reply <- ok
	}
}

func (g *Gateway) attach(conn *Connection) {
	prev, exists := g.conns[conn.UserID]
	g.conns[conn.UserID] = conn
	g.metrics.SetOnline(len(g.conns))

	if exists && prev != conn {
		// The previous connection stays open but no longer receives routed events.
		g.metrics.ConnectionSuperseded()
		g.log.Info().
			Str("user_id", conn.UserID).
			Str("conn_id", conn.ID).
			Str("previous_conn_id", prev.ID).
			Msg("user connected, previous connection superseded")
		return
	}
	g.log.Info().Str("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("user connected")
}

func (g *Gateway) detach(conn *Connection) {
	current, ok := g.conns[conn.UserID]
	if !ok {
		g.log.Debug().Str("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("connection closed, user already offline")
		return
	}
	delete(g.conns, conn.UserID)
	g.metrics.SetOnline(len(g.conns))
	if current != conn {
		g.log.Warn().
			Str("user_id", conn.UserID).
			Str("conn_id", conn.ID).
			Str("live_conn_id", current.ID).
			Msg("superseded connection closed, user removed")
		return
	}
	g.log.Info().Str("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("user disconnected")
}

func (g *Gateway) dispatch(from *Connection, cmd *Command) {
	if cmd == nil {
		return
	}
	h, ok := g.handlers[cmd.Kind]
	if !ok {
		g.deliver(from, ErrorEvent(ErrCodeUnknownEvent, "unknown command"))
		return
	}
	h(from, cmd)
}

func (g *Gateway) handleSendMessage(from *Connection, cmd *Command) {
	msg := cmd.Message
	msg.SenderID = from.UserID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	g.route(msg.ReceiverID, &Event{Kind: EventNewMessage, Message: msg})
}

func (g *Gateway) handleTyping(from *Connection, cmd *Command) {
	typing := cmd.Typing
	typing.UserID = from.UserID

	kind := EventUserTyping
	if cmd.Kind == CommandTypingStop {
		kind = EventUserStoppedTyping
	}
	g.route(typing.ReceiverID, &Event{Kind: kind, Typing: typing})
}

func (g *Gateway) handleReceipt(from *Connection, cmd *Command) {
	receipt := cmd.Receipt
	receipt.ReaderID = from.UserID
	g.route(receipt.SenderID, &Event{Kind: EventMessageStatus, Receipt: receipt})
}

// route delivers ev to userID's live connection. A miss is expected for offline peers.
func (g *Gateway) route(userID string, ev *Event) bool {
	conn, ok := g.conns[userID]
	if !ok {
		g.metrics.RoutingMiss(ev.Kind.String())
		g.log.Debug().Str("user_id", userID).Stringer("event", ev.Kind).Msg("recipient offline, event dropped")
		return false
	}
	return g.deliver(conn, ev)
}

func (g *Gateway) deliver(conn *Connection, ev *Event) bool {
	if !conn.Send(ev) {
		g.metrics.EventDropped()
		g.log.Warn().
			Str("user_id", conn.UserID).
			Str("conn_id", conn.ID).
			Stringer("event", ev.Kind).
			Msg("outbound queue full, event dropped")
		return false
	}
	g.metrics.EventRouted(ev.Kind.String())
	return true
}
