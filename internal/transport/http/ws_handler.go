package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/presence"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/service/delivery"
)

const (
	writeTimeout    = 10 * time.Second
	presenceTimeout = 2 * time.Second
)

var errGatewayStopped = errors.New("gateway stopped")

// WSHandler authenticates WebSocket handshakes and bridges connections to the gateway.
type WSHandler struct {
	gateway  *core.Gateway
	verifier *auth.Verifier
	delivery *delivery.Service
	presence presence.Publisher
	metrics  *metrics.Metrics
	cfg      config.GatewayConfig
	accept   *websocket.AcceptOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps Deps, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	h := &WSHandler{
		gateway:  deps.Gateway,
		verifier: deps.Verifier,
		delivery: deps.Delivery,
		presence: deps.Presence,
		metrics:  deps.Metrics,
		cfg:      cfg.Gateway,
		accept:   acceptOptions(cfg.AllowedOrigins),
		log:      applog.OrNop(logger),
	}
	if h.delivery == nil {
		h.delivery = delivery.New(delivery.Options{Logger: h.log})
	}
	if h.presence == nil {
		h.presence = presence.Noop{}
	}
	return h
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := credentialFromRequest(r)
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.metrics.AuthFailed()
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws handshake rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Debug().Err(err).Str("user_id", userID).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	// A failed upgrade must never touch the mapping, so the attach waits for
	// Accept. It is still queued before the read loop submits anything.
	client := core.NewConnection(userID, h.cfg.SendQueue)
	h.gateway.Attach(client)

	h.metrics.ConnectionOpened()
	h.markOnline(r.Context(), client)
	defer func() {
		h.gateway.Detach(client)
		h.metrics.ConnectionClosed()
		h.markOffline(client)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.keepalive(ctx, conn, client)
	}()

	err = <-errCh
	cancel()
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errGatewayStopped):
		status = websocket.StatusGoingAway
		reason = "server shutting down"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("user_id", client.UserID).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	limiter := newInboundLimiter(h.cfg)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		// Every frame costs a token, including ones that fail to decode.
		if !h.allow(limiter, client) {
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.reply(client, core.ErrorEvent(core.ErrCodeBadRequest, "malformed envelope"))
			continue
		}

		if inbound.Event == proto.InboundClientError {
			h.logClientError(client, inbound.Data)
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.reply(client, core.ErrorEvent(protoErr.Code, protoErr.Message))
			continue
		}
		if !h.prepare(ctx, client, cmd) {
			continue
		}
		h.gateway.Submit(client, cmd)
	}
}

// prepare runs the store-backed checks for cmd. It reports whether cmd should be routed.
func (h *WSHandler) prepare(ctx context.Context, client *core.Connection, cmd *core.Command) bool {
	switch cmd.Kind {
	case core.CommandSendMessage:
		if err := h.delivery.Authorize(ctx, cmd.Message.ChatID, client.UserID, cmd.Message.ReceiverID); err != nil {
			h.reply(client, h.deliveryError(client, err))
			return false
		}
	case core.CommandReceipt:
		forward, err := h.delivery.Acknowledge(ctx, client.UserID, &cmd.Receipt)
		if err != nil {
			h.reply(client, h.deliveryError(client, err))
			return false
		}
		if !forward {
			return false
		}
		if cmd.Receipt.SenderID == "" {
			h.reply(client, core.ErrorEvent(core.ErrCodeBadRequest, "senderId is required"))
			return false
		}
	}
	return true
}

func (h *WSHandler) deliveryError(client *core.Connection, err error) *core.Event {
	switch {
	case errors.Is(err, delivery.ErrNotParticipant), errors.Is(err, delivery.ErrNotReceiver):
		return core.ErrorEvent(core.ErrCodeForbidden, err.Error())
	case errors.Is(err, delivery.ErrMessageNotFound):
		return core.ErrorEvent(core.ErrCodeNotFound, err.Error())
	default:
		h.log.Error().Err(err).Str("user_id", client.UserID).Msg("delivery check failed")
		return core.ErrorEvent(core.ErrCodeInternal, "failed to handle event")
	}
}

func (h *WSHandler) allow(limiter *rate.Limiter, client *core.Connection) bool {
	if limiter.Allow() {
		return true
	}
	h.metrics.InboundRateLimited()
	h.reply(client, core.ErrorEvent(core.ErrCodeRateLimited, "too many events"))
	return false
}

// reply queues an event for the connection itself, bypassing routing.
func (h *WSHandler) reply(client *core.Connection, ev *core.Event) {
	if !client.Send(ev) {
		h.metrics.EventDropped()
	}
}

func (h *WSHandler) logClientError(client *core.Connection, data json.RawMessage) {
	var report proto.ClientErrorData
	if err := json.Unmarshal(data, &report); err != nil {
		h.reply(client, core.ErrorEvent(core.ErrCodeBadRequest, "invalid clientError payload"))
		return
	}
	h.log.Warn().
		Str("user_id", client.UserID).
		Str("type", report.Type).
		RawJSON("details", detailsOrNull(report.Details)).
		Msg("client reported error")
}

func detailsOrNull(details json.RawMessage) []byte {
	if len(details) == 0 {
		return []byte("null")
	}
	return details
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	for {
		select {
		case event := <-client.Events:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, outboundFromEvent(event))
			cancel()
			if err != nil {
				return fmt.Errorf("write %s: %w", event.Kind, err)
			}
		case <-h.gateway.Done():
			return errGatewayStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive pings the client and renews the presence mirror on every interval.
func (h *WSHandler) keepalive(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	if h.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			h.refreshPresence(ctx, client)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) markOnline(ctx context.Context, client *core.Connection) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := h.presence.Online(ctx, client.UserID, client.ID); err != nil {
		h.log.Warn().Err(err).Str("user_id", client.UserID).Msg("presence online failed")
	}
}

// refreshPresence extends the mirror entry only while it still names this connection.
func (h *WSHandler) refreshPresence(ctx context.Context, client *core.Connection) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := h.presence.Refresh(ctx, client.UserID, client.ID); err != nil {
		h.log.Warn().Err(err).Str("user_id", client.UserID).Msg("presence refresh failed")
	}
}

func (h *WSHandler) markOffline(client *core.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Offline(ctx, client.UserID, client.ID); err != nil {
		h.log.Warn().Err(err).Str("user_id", client.UserID).Msg("presence offline failed")
	}
}

// credentialFromRequest reads the handshake token from the Authorization header,
// falling back to the token query parameter for clients that cannot set headers.
func credentialFromRequest(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// acceptOptions converts configured CORS origins into websocket origin patterns.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range origins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
			continue
		}
		opts.OriginPatterns = append(opts.OriginPatterns, origin)
	}
	return opts
}
