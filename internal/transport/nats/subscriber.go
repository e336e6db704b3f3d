package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

var errInvalidPush = errors.New("userId and event are required")

// Pusher delivers a named event to a connected user.
type Pusher interface {
	PushToUser(userID, event string, payload any)
}

// Connect dials the NATS server with reconnects enabled.
func Connect(url, name string) (*natsio.Conn, error) {
	nc, err := natsio.Connect(url,
		natsio.Name(name),
		natsio.MaxReconnects(-1),
		natsio.ReconnectWait(500*time.Millisecond),
		natsio.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Subscriber feeds push requests published on NATS into the gateway.
type Subscriber struct {
	nc      *natsio.Conn
	sub     *natsio.Subscription
	pusher  Pusher
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewSubscriber creates a subscriber on an established connection.
func NewSubscriber(nc *natsio.Conn, pusher Pusher, m *metrics.Metrics, logger *zerolog.Logger) *Subscriber {
	return &Subscriber{nc: nc, pusher: pusher, metrics: m, log: applog.OrNop(logger)}
}

// Start subscribes to subject. With a queue group, each request reaches one gateway instance.
func (s *Subscriber) Start(subject, queue string) error {
	var (
		sub *natsio.Subscription
		err error
	)
	if queue == "" {
		sub, err = s.nc.Subscribe(subject, s.handle)
	} else {
		sub, err = s.nc.QueueSubscribe(subject, queue, s.handle)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.sub = sub
	s.log.Info().Str("subject", subject).Str("queue", queue).Msg("nats push subscriber started")
	return nil
}

func (s *Subscriber) handle(msg *natsio.Msg) {
	req, err := decodePush(msg.Data)
	if err != nil {
		s.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed push")
		return
	}
	s.metrics.PushRequested("nats")
	s.pusher.PushToUser(req.UserID, req.Event, req.Payload())
}

// Close drains the subscription. The connection is owned by the caller.
func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}

func decodePush(data []byte) (proto.PushRequest, error) {
	var req proto.PushRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode push: %w", err)
	}
	if req.UserID == "" || req.Event == "" {
		return req, errInvalidPush
	}
	return req, nil
}
