package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/presence"
	"github.com/vovakirdan/chatrelay/internal/service/delivery"
)

// Deps are the collaborators the HTTP layer bridges to.
type Deps struct {
	Gateway  *core.Gateway
	Verifier *auth.Verifier
	Delivery *delivery.Service
	Presence presence.Publisher
	Metrics  *metrics.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewServer builds the HTTP server: health, metrics, WebSocket and push routes.
func NewServer(cfg config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	logger = applog.OrNop(logger)
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if cfg.PushSecret != "" {
		push := NewPushHandlers(deps.Gateway, deps.Metrics, logger)
		router.POST("/internal/push", PushAuthMiddleware(cfg.PushSecret, logger), push.Push)
	} else {
		logger.Warn().Msg("push_secret not set, POST /internal/push disabled")
	}

	api := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(router)

	// /ws stays off the gin router: the upgrade has to hijack the raw
	// ResponseWriter, and origins are checked by websocket.Accept.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps, cfg, logger))
	mux.Handle("/", api)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
