package http

import (
	"golang.org/x/time/rate"

	"github.com/vovakirdan/chatrelay/internal/config"
)

// newInboundLimiter builds the per-connection token bucket for client events.
// A non-positive rate disables limiting.
func newInboundLimiter(cfg config.GatewayConfig) *rate.Limiter {
	if cfg.InboundRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.InboundBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.InboundRate), burst)
}
