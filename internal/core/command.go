package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage relays a chat message to its receiver.
	CommandSendMessage CommandKind = iota
	// CommandTypingStart tells the receiver the sender started typing.
	CommandTypingStart
	// CommandTypingStop tells the receiver the sender stopped typing.
	CommandTypingStop
	// CommandReceipt tells a message's sender it was delivered or read.
	CommandReceipt
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendMessage:
		return "send_message"
	case CommandTypingStart:
		return "typing_start"
	case CommandTypingStop:
		return "typing_stop"
	case CommandReceipt:
		return "receipt"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Sender fields are ignored; the gateway stamps the connection's user.
type Command struct {
	Kind    CommandKind
	Message Message
	Typing  Typing
	Receipt Receipt
}
