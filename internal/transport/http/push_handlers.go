package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/metrics"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// PushHandlers lets the chat backend push events to connected users.
type PushHandlers struct {
	gateway *core.Gateway
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewPushHandlers creates a new push handlers instance.
func NewPushHandlers(gateway *core.Gateway, m *metrics.Metrics, logger *zerolog.Logger) *PushHandlers {
	return &PushHandlers{gateway: gateway, metrics: m, log: logger}
}

// Push hands an event to the gateway. Delivery is best-effort, so the
// response only confirms the request was accepted.
// POST /internal/push
func (h *PushHandlers) Push(c *gin.Context) {
	var req proto.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid push request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.metrics.PushRequested("http")
	h.gateway.PushToUser(req.UserID, req.Event, req.Payload())

	h.log.Debug().Str("user_id", req.UserID).Str("event", req.Event).Msg("push accepted")
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
