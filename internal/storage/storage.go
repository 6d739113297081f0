package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the message store and user lookup the messaging core depends on.
type Storage interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	ListActiveUsersExcept(ctx context.Context, userID uint) ([]models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	SetUserActive(ctx context.Context, id uint, active bool) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	FindMessageByID(ctx context.Context, id uint) (*models.Message, error)
	DeleteMessage(ctx context.Context, id uint) error
	MarkMessageRead(ctx context.Context, id uint) (bool, error)
	MarkConversationRead(ctx context.Context, readerID, senderID uint) (int64, error)

	ListMessagesForUser(ctx context.Context, userID uint) ([]models.Message, error)
	ListConversation(ctx context.Context, userID, otherID uint) ([]models.Message, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	CountUnreadBySender(ctx context.Context, userID uint) ([]models.UnreadCount, error)
	ListConversationSummaries(ctx context.Context, userID uint) ([]models.ConversationSummary, error)
}

type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *slog.Logger
}

// NewStorageService Constructor. rdb may be nil when the fan-out bridge is disabled.
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		logger: logger,
	}
}

// Migrate creates or updates the tables owned by this service.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.Message{})
}

func (s *Service) withSides(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Preload("Sender").Preload("Receiver")
}

// GetUserByID returns apperr.ErrNotFound when the user does not exist.
func (s *Service) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence("get user", err)
	}
	return &user, nil
}

// ListActiveUsersExcept is the contact list: every active account but the caller.
func (s *Service) ListActiveUsersExcept(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	err := s.DB.WithContext(ctx).
		Where("id <> ? AND is_active = ?", userID, true).
		Order("username asc").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Persistence("list contacts", err)
	}
	return users, nil
}

func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return apperr.Persistence("save user", s.DB.WithContext(ctx).Save(user).Error)
}

func (s *Service) SetUserActive(ctx context.Context, id uint, active bool) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return apperr.Persistence("set user active", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %d", id)
	}
	return nil
}

// CreateMessage persists msg; msg.ID and timestamps are filled in by GORM.
func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.DB.WithContext(ctx).Omit("Sender", "Receiver").Create(msg).Error; err != nil {
		s.logger.Error("failed to save message", "sender_id", msg.SenderID, "receiver_id", msg.ReceiverID, "error", err)
		return apperr.Persistence("create message", err)
	}
	return nil
}

// FindMessageByID returns the message with sender and receiver embedded.
// Soft-deleted messages are reported as not found.
func (s *Service) FindMessageByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := s.withSides(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence("find message", err)
	}
	return &msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return apperr.Persistence("delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("message %d", id)
	}
	return nil
}

// MarkMessageRead flips the read flag and reports whether this call changed it.
func (s *Service) MarkMessageRead(ctx context.Context, id uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	if res.Error != nil {
		return false, apperr.Persistence("mark message read", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkConversationRead marks every unread message from senderID to readerID read.
func (s *Service) MarkConversationRead(ctx context.Context, readerID, senderID uint) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", readerID, senderID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, apperr.Persistence("mark conversation read", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) ListMessagesForUser(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.withSides(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at desc, id desc").
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.Persistence("list messages", err)
	}
	return msgs, nil
}

// ListConversation returns both directions of a conversation, oldest first.
func (s *Service) ListConversation(ctx context.Context, userID, otherID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.withSides(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userID, otherID, otherID, userID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.Persistence("list conversation", err)
	}
	return msgs, nil
}

func (s *Service) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, apperr.Persistence("count unread", err)
	}
	return count, nil
}

func (s *Service) CountUnreadBySender(ctx context.Context, userID uint) ([]models.UnreadCount, error) {
	var counts []models.UnreadCount
	err := s.DB.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, count(*) as count").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Group("sender_id").
		Order("sender_id asc").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Persistence("count unread by sender", err)
	}
	return counts, nil
}

// ListConversationSummaries returns one row per counterpart with the last
// message and the unread count, most recent conversation first.
func (s *Service) ListConversationSummaries(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	msgs, err := s.ListMessagesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byPeer := make(map[uint]*models.ConversationSummary)
	var order []uint
	for i := range msgs {
		msg := &msgs[i]
		peerID := msg.Counterpart(userID)
		summary, ok := byPeer[peerID]
		if !ok {
			// messages are newest first, so the first one seen is the last message
			summary = &models.ConversationSummary{LastMessage: msg}
			if msg.SenderID == peerID && msg.Sender != nil {
				summary.User = *msg.Sender
			} else if msg.Receiver != nil {
				summary.User = *msg.Receiver
			}
			byPeer[peerID] = summary
			order = append(order, peerID)
		}
		if msg.ReceiverID == userID && !msg.IsRead {
			summary.UnreadCount++
		}
	}

	summaries := make([]models.ConversationSummary, 0, len(order))
	for _, peerID := range order {
		summaries = append(summaries, *byPeer[peerID])
	}
	return summaries, nil
}

// PublishDelivery publishes an addressed event on the cross-instance channel.
func (s *Service) PublishDelivery(ctx context.Context, d models.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, config.DeliveryChannel, payload).Err()
}

// SubscribeDeliveries subscribes to the cross-instance delivery channel.
func (s *Service) SubscribeDeliveries(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, config.DeliveryChannel)
}
