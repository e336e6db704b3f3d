package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	InboundMessage          = "message"
	InboundTyping           = "typing"
	InboundStopTyping       = "stopTyping"
	InboundMessageDelivered = "messageDelivered"
	InboundMessageRead      = "messageRead"
	InboundClientError      = "clientError"

	OutboundNewMessage          = "newMessage"
	OutboundUserTyping          = "userTyping"
	OutboundUserStoppedTyping   = "userStoppedTyping"
	OutboundMessageStatusUpdate = "messageStatusUpdate"
	OutboundError               = "error"
)

// MessageData is a chat message from the client.
type MessageData struct {
	ChatID     string `json:"chatId"`
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
}

// TypingData starts or stops a typing indicator.
type TypingData struct {
	ChatID     string `json:"chatId"`
	ReceiverID string `json:"receiverId"`
}

// ReceiptData acknowledges a message on behalf of its receiver.
type ReceiptData struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
}

// ClientErrorData is reported by clients for diagnostics.
type ClientErrorData struct {
	Type    string          `json:"type"`
	Details json.RawMessage `json:"details,omitempty"`
}

// NewMessage is delivered to the receiver of a message. CreatedAt is in unix milliseconds.
type NewMessage struct {
	SenderID   string `json:"senderId"`
	ChatID     string `json:"chatId"`
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
	MessageID  string `json:"messageId,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// UserTyping notifies about a peer's typing indicator.
type UserTyping struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// MessageStatusUpdate tells a sender their message was delivered or read.
type MessageStatusUpdate struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Status    string `json:"status"`
	UserID    string `json:"userId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PushRequest asks the gateway to deliver a named event to one user.
type PushRequest struct {
	UserID string          `json:"userId" binding:"required"`
	Event  string          `json:"event" binding:"required"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Payload returns Data as an opaque JSON value, or nil when absent.
func (p PushRequest) Payload() any {
	if len(p.Data) == 0 {
		return nil
	}
	return p.Data
}
