package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a chat or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusRegression is returned when a status update would move backwards.
	ErrStatusRegression = errors.New("status regression")
)

// ChatType distinguishes one-to-one chats from groups.
type ChatType string

const (
	ChatTypeIndividual ChatType = "individual"
	ChatTypeGroup      ChatType = "group"
)

// Chat is a conversation owned by the chat backend.
type Chat struct {
	ID            string
	Participants  []string
	Type          ChatType
	GroupName     string
	GroupAdmin    string
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message: sent -> delivered -> read.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return 0
}

// Precedes reports whether s is strictly earlier than next.
func (s MessageStatus) Precedes(next MessageStatus) bool {
	return next.Rank() > 0 && s.Rank() < next.Rank()
}

// Message is a persisted chat message.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Type       MessageType
	Status     MessageStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChatStore answers membership questions about chats.
type ChatStore interface {
	// GetChat retrieves a chat by ID.
	GetChat(ctx context.Context, chatID string) (*Chat, error)

	// IsParticipant checks if userID is a participant of chatID.
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// MessageStore exposes the receipt side of message persistence.
type MessageStore interface {
	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// AdvanceStatus moves the message status forward to status.
	// Returns ErrStatusRegression when the stored status is already at or past status.
	AdvanceStatus(ctx context.Context, messageID string, status MessageStatus) (*Message, error)
}

// Store aggregates the store contracts consumed by the gateway.
type Store interface {
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
