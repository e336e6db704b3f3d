package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage delivers a relayed chat message.
	EventNewMessage EventKind = iota
	// EventUserTyping notifies that a peer started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies that a peer stopped typing.
	EventUserStoppedTyping
	// EventMessageStatus notifies a sender that a message was delivered or read.
	EventMessageStatus
	// EventPush carries an externally triggered named event.
	EventPush
	// EventError notifies the originating client about a failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventUserTyping:
		return "user_typing"
	case EventUserStoppedTyping:
		return "user_stopped_typing"
	case EventMessageStatus:
		return "message_status"
	case EventPush:
		return "push"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message Message
	Typing  Typing
	Receipt Receipt
	Push    *Push
	Error   *CoreError
}

// ErrorEvent builds an EventError with the given code.
func ErrorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: coreError(code, msg)}
}
