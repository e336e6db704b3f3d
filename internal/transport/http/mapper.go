package http

import (
	"encoding/json"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/store"
)

// inboundToCommand maps a client envelope to a gateway command.
// Sender fields are left empty; the gateway stamps the connection's user.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Event {
	case proto.InboundMessage:
		var msg proto.MessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badRequest("invalid message payload")
		}
		if msg.ChatID == "" || msg.ReceiverID == "" {
			return nil, badRequest("chatId and receiverId are required")
		}
		msgType := store.MessageTypeText
		if msg.Type != "" {
			msgType = store.MessageType(msg.Type)
			if !msgType.Valid() {
				return nil, badRequest("unknown message type")
			}
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Message: core.Message{
				ID:         msg.MessageID,
				ChatID:     msg.ChatID,
				ReceiverID: msg.ReceiverID,
				Content:    msg.Content,
				Type:       msgType,
			},
		}, nil
	case proto.InboundTyping, proto.InboundStopTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, badRequest("invalid typing payload")
		}
		if typing.ReceiverID == "" {
			return nil, badRequest("receiverId is required")
		}
		kind := core.CommandTypingStart
		if inbound.Event == proto.InboundStopTyping {
			kind = core.CommandTypingStop
		}
		return &core.Command{
			Kind:   kind,
			Typing: core.Typing{ChatID: typing.ChatID, ReceiverID: typing.ReceiverID},
		}, nil
	case proto.InboundMessageDelivered, proto.InboundMessageRead:
		var receipt proto.ReceiptData
		if err := json.Unmarshal(inbound.Data, &receipt); err != nil {
			return nil, badRequest("invalid receipt payload")
		}
		if receipt.MessageID == "" {
			return nil, badRequest("messageId is required")
		}
		status := store.MessageStatusDelivered
		if inbound.Event == proto.InboundMessageRead {
			status = store.MessageStatusRead
		}
		return &core.Command{
			Kind: core.CommandReceipt,
			Receipt: core.Receipt{
				MessageID: receipt.MessageID,
				ChatID:    receipt.ChatID,
				SenderID:  receipt.SenderID,
				Status:    status,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeUnknownEvent, Message: "unknown event: " + inbound.Event}
	}
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Message: msg}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		return proto.Outbound{
			Event: proto.OutboundNewMessage,
			Data: proto.NewMessage{
				SenderID:   event.Message.SenderID,
				ChatID:     event.Message.ChatID,
				Content:    event.Message.Content,
				ReceiverID: event.Message.ReceiverID,
				Type:       string(event.Message.Type),
				MessageID:  event.Message.ID,
				CreatedAt:  event.Message.CreatedAt.UnixMilli(),
			},
		}
	case core.EventUserTyping, core.EventUserStoppedTyping:
		name := proto.OutboundUserTyping
		if event.Kind == core.EventUserStoppedTyping {
			name = proto.OutboundUserStoppedTyping
		}
		return proto.Outbound{
			Event: name,
			Data: proto.UserTyping{
				ChatID: event.Typing.ChatID,
				UserID: event.Typing.UserID,
			},
		}
	case core.EventMessageStatus:
		return proto.Outbound{
			Event: proto.OutboundMessageStatusUpdate,
			Data: proto.MessageStatusUpdate{
				MessageID: event.Receipt.MessageID,
				ChatID:    event.Receipt.ChatID,
				Status:    string(event.Receipt.Status),
				UserID:    event.Receipt.ReaderID,
			},
		}
	case core.EventPush:
		if event.Push == nil {
			break
		}
		return proto.Outbound{Event: event.Push.Name, Data: event.Push.Payload}
	case core.EventError:
		if event.Error != nil {
			return proto.Outbound{
				Event: proto.OutboundError,
				Data:  proto.Error{Code: event.Error.Code, Message: event.Error.Message},
			}
		}
	}
	return proto.Outbound{
		Event: proto.OutboundError,
		Data:  proto.Error{Code: core.ErrCodeInternal, Message: "unknown event"},
	}
}
