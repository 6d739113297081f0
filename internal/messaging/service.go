// Package messaging implements the message lifecycle shared by the websocket
// gateway and the REST surface: persist first, then fan out to the
// participants' channels.
package messaging

import (
	"context"
	"log/slog"
	"strings"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/models"
	"mindspace/backend/internal/storage"
)

// Emitter delivers an event to every live connection of a user.
type Emitter interface {
	Emit(ctx context.Context, userID uint, event models.OutboundEvent) error
}

// Service handles the business logic for direct messages.
type Service struct {
	Storage storage.Storage
	Emitter Emitter
	logger  *slog.Logger
}

// NewService creates a new messaging service.
func NewService(s storage.Storage, e Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Storage: s, Emitter: e, logger: logger}
}

// Send persists a message from sender and emits new_message to both parties.
func (s *Service) Send(ctx context.Context, sender models.Identity, in models.SendMessage) (*models.Message, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.ReceiverID == sender.ID {
		return nil, apperr.Invalid("cannot send a message to yourself")
	}
	if _, err := s.Storage.GetUserByID(ctx, in.ReceiverID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		Content:     strings.TrimSpace(in.Content),
		SenderID:    sender.ID,
		ReceiverID:  in.ReceiverID,
		IsRead:      false,
		Attachments: in.Attachments,
	}
	if err := s.Storage.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	stored, err := s.Storage.FindMessageByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	event := models.OutboundEvent{Event: models.EventNewMessage, Data: stored}
	s.emit(ctx, stored.ReceiverID, event)
	s.emit(ctx, stored.SenderID, event)
	return stored, nil
}

// Delete removes a message on behalf of one of its participants.
func (s *Service) Delete(ctx context.Context, requesterID, messageID uint) error {
	msg, err := s.Storage.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.Involves(requesterID) {
		return apperr.Unauthorized("user %d cannot delete message %d", requesterID, messageID)
	}
	if err := s.Storage.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	event := models.OutboundEvent{
		Event: models.EventMessageDeleted,
		Data:  models.MessageDeletedPayload{MessageID: messageID},
	}
	s.emit(ctx, msg.SenderID, event)
	s.emit(ctx, msg.ReceiverID, event)
	return nil
}

// MarkRead marks a message read by its receiver. It reports whether the flag
// changed; marking an already-read message is a silent no-op.
func (s *Service) MarkRead(ctx context.Context, readerID, messageID uint) (bool, error) {
	msg, err := s.Storage.FindMessageByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.ReceiverID != readerID {
		return false, apperr.Unauthorized("user %d is not the receiver of message %d", readerID, messageID)
	}
	if msg.IsRead {
		return false, nil
	}

	changed, err := s.Storage.MarkMessageRead(ctx, messageID)
	if err != nil || !changed {
		return false, err
	}

	s.emit(ctx, msg.SenderID, models.OutboundEvent{
		Event: models.EventMessageRead,
		Data:  models.MessageReadPayload{MessageID: messageID, ReaderID: readerID},
	})
	return true, nil
}

// MarkAllRead marks every unread message from otherID to readerID read and
// tells otherID when anything changed.
func (s *Service) MarkAllRead(ctx context.Context, readerID, otherID uint) (int64, error) {
	n, err := s.Storage.MarkConversationRead(ctx, readerID, otherID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit(ctx, otherID, models.OutboundEvent{
			Event: models.EventMessagesRead,
			Data:  models.MessagesReadPayload{ReadBy: readerID},
		})
	}
	return n, nil
}

// Typing forwards a typing indicator to the receiver only. Nothing is stored.
func (s *Service) Typing(ctx context.Context, sender models.Identity, in models.Typing) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.Emitter.Emit(ctx, in.ReceiverID, models.OutboundEvent{
		Event: models.EventTypingStatus,
		Data: models.TypingStatusPayload{
			UserID:   sender.ID,
			IsTyping: *in.IsTyping,
			Username: sender.Username,
		},
	})
}

// Conversation returns the messages exchanged with otherID and marks the
// inbound ones read.
func (s *Service) Conversation(ctx context.Context, userID, otherID uint) ([]models.Message, error) {
	if _, err := s.Storage.GetUserByID(ctx, otherID); err != nil {
		return nil, err
	}
	msgs, err := s.Storage.ListConversation(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if _, err := s.MarkAllRead(ctx, userID, otherID); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ReceiverID == userID {
			msgs[i].IsRead = true
		}
	}
	return msgs, nil
}

func (s *Service) ListMine(ctx context.Context, userID uint) ([]models.Message, error) {
	return s.Storage.ListMessagesForUser(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.Storage.CountUnread(ctx, userID)
}

func (s *Service) UnreadBySender(ctx context.Context, userID uint) ([]models.UnreadCount, error) {
	return s.Storage.CountUnreadBySender(ctx, userID)
}

func (s *Service) Conversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	return s.Storage.ListConversationSummaries(ctx, userID)
}

func (s *Service) Contacts(ctx context.Context, userID uint) ([]models.User, error) {
	return s.Storage.ListActiveUsersExcept(ctx, userID)
}

// emit never fails the operation: the message is already durable and clients
// can recover it by fetching.
func (s *Service) emit(ctx context.Context, userID uint, event models.OutboundEvent) {
	if err := s.Emitter.Emit(ctx, userID, event); err != nil {
		s.logger.Warn("fan-out failed", "event", event.Event, "user_id", userID, "error", err)
	}
}
