package core

import (
	"time"

	"github.com/vovakirdan/chatrelay/internal/store"
)

// Message is a chat message relayed between live peers.
// ID is empty unless the client or the store assigned one.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Type       store.MessageType
	CreatedAt  time.Time
}

// Typing describes a typing indicator change in a chat.
type Typing struct {
	ChatID     string
	UserID     string
	ReceiverID string
}

// Receipt reports that ReaderID received or read a message written by SenderID.
type Receipt struct {
	MessageID string
	ChatID    string
	SenderID  string
	ReaderID  string
	Status    store.MessageStatus
}

// Push is an externally triggered event with a free-form payload.
type Push struct {
	Name    string
	Payload any
}
