package core

import (
	"time"

	"github.com/google/uuid"
)

const defaultQueueSize = 32

// Connection is one live, authenticated transport session as seen by the core layer.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time
	Events      chan *Event
}

// NewConnection constructs a connection for a verified user with a bounded outbound queue.
func NewConnection(userID string, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Events:      make(chan *Event, queueSize),
	}
}

// Send queues ev without blocking. It reports false when the queue is full.
func (c *Connection) Send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
