package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/presence"
	"github.com/vovakirdan/chatrelay/internal/service/delivery"
	"github.com/vovakirdan/chatrelay/internal/store"
	"github.com/vovakirdan/chatrelay/internal/store/mongo"
	"github.com/vovakirdan/chatrelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatrelay/internal/transport/http"
	transportnats "github.com/vovakirdan/chatrelay/internal/transport/nats"
)

const connectTimeout = 10 * time.Second

// ErrInsecureJWTSecret is returned by New when jwt_secret is empty or still the built-in default.
var ErrInsecureJWTSecret = errors.New("jwt_secret is empty or the default value, set CHATRELAY_JWT_SECRET")

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	gateway         *core.Gateway
	store           store.Store
	presence        *presence.RedisPublisher
	nats            *natsio.Conn
	subscriber      *transportnats.Subscriber
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
// Optional backends (store, Redis, NATS) are only dialed when configured.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	logger = applog.OrNop(logger)
	if cfg.JWTSecret == "" || cfg.JWTSecret == config.Default().JWTSecret {
		return nil, ErrInsecureJWTSecret
	}
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	st, err := openStore(connectCtx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("driver", cfg.Store.Driver).Msg("store initialized")

	var pub presence.Publisher = presence.Noop{}
	if cfg.Redis.Addr != "" {
		rp, err := presence.NewRedisPublisher(connectCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PresenceTTL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence: %w", err)
		}
		a.presence = rp
		pub = rp
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("presence mirror enabled")
	}

	a.gateway = core.NewGateway(logger, m)

	if cfg.NATS.URL != "" {
		nc, err := transportnats.Connect(cfg.NATS.URL, "chatrelay")
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		a.nats = nc
		a.subscriber = transportnats.NewSubscriber(nc, a.gateway, m, logger)
		if err := a.subscriber.Start(cfg.NATS.PushSubject, cfg.NATS.Queue); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init nats: %w", err)
		}
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}

	deps := transporthttp.Deps{
		Gateway:  a.gateway,
		Verifier: auth.NewVerifier(jwtConfig),
		Delivery: delivery.New(delivery.Options{
			Chats:             st,
			Messages:          st,
			EnforceMembership: cfg.Gateway.EnforceMembership,
			Logger:            logger,
		}),
		Presence: pub,
		Metrics:  m,
		Gatherer: reg,
	}
	a.server = transporthttp.NewServer(*cfg, deps, logger)

	return a, nil
}

// openStore opens the configured store. The "none" driver returns a nil store.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "mongo":
		return mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.gateway.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes backends in reverse order of construction.
func (a *App) cleanup() {
	if a.subscriber != nil {
		if err := a.subscriber.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to drain nats subscription")
		}
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.presence != nil {
		if err := a.presence.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
