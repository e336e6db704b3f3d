package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
	applog "github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/store"
)

// Common errors for delivery checks.
var (
	ErrNotParticipant  = errors.New("user is not a participant of the chat")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotReceiver     = errors.New("only the receiver may acknowledge a message")
)

// Service runs the store-backed checks that precede routing.
// Either store may be nil, in which case the corresponding check is skipped.
type Service struct {
	chats    store.ChatStore
	messages store.MessageStore
	enforce  bool
	log      *zerolog.Logger
}

// Options configures a Service.
type Options struct {
	Chats    store.ChatStore
	Messages store.MessageStore
	// EnforceMembership requires sender and receiver to belong to the chat.
	EnforceMembership bool
	Logger            *zerolog.Logger
}

// New creates a delivery service.
func New(opts Options) *Service {
	return &Service{
		chats:    opts.Chats,
		messages: opts.Messages,
		enforce:  opts.EnforceMembership,
		log:      applog.OrNop(opts.Logger),
	}
}

// Authorize checks that senderID may address receiverID in chatID.
func (s *Service) Authorize(ctx context.Context, chatID, senderID, receiverID string) error {
	if !s.enforce || s.chats == nil {
		return nil
	}
	for _, userID := range []string{senderID, receiverID} {
		ok, err := s.chats.IsParticipant(ctx, chatID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			s.log.Debug().Str("chat_id", chatID).Str("user_id", userID).Msg("membership check failed")
			return ErrNotParticipant
		}
	}
	return nil
}

// Acknowledge records that readerID reached receipt.Status for a message.
// It reports whether the receipt should be forwarded to the message sender.
// When a message store is configured, the stored chat and sender replace the client's values.
func (s *Service) Acknowledge(ctx context.Context, readerID string, receipt *core.Receipt) (bool, error) {
	if s.messages == nil {
		return true, nil
	}

	msg, err := s.messages.GetMessage(ctx, receipt.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrMessageNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get message: %w", err)
	}

	if msg.ReceiverID != "" && msg.ReceiverID != readerID {
		return false, ErrNotReceiver
	}
	if msg.ReceiverID == "" && s.chats != nil {
		// Group messages carry no receiver; any other participant may acknowledge.
		ok, err := s.chats.IsParticipant(ctx, msg.ChatID, readerID)
		if err != nil {
			return false, fmt.Errorf("check membership: %w", err)
		}
		if !ok || readerID == msg.SenderID {
			return false, ErrNotReceiver
		}
	}

	receipt.ChatID = msg.ChatID
	receipt.SenderID = msg.SenderID

	if _, err := s.messages.AdvanceStatus(ctx, msg.ID, receipt.Status); err != nil {
		if errors.Is(err, store.ErrStatusRegression) {
			s.log.Debug().
				Str("message_id", msg.ID).
				Str("status", string(receipt.Status)).
				Msg("receipt ignored, status already reached")
			return false, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrMessageNotFound
		}
		return false, fmt.Errorf("advance status: %w", err)
	}
	return true, nil
}
