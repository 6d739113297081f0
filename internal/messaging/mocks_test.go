package messaging_test

import (
	"context"
	"sync"

	"mindspace/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) ListActiveUsersExcept(ctx context.Context, userID uint) ([]models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) SaveUser(ctx context.Context, user *models.User) error {
	return m.Called(user).Error(0)
}

func (m *MockStorage) SetUserActive(ctx context.Context, id uint, active bool) error {
	return m.Called(id, active).Error(0)
}

func (m *MockStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(msg).Error(0)
}

func (m *MockStorage) FindMessageByID(ctx context.Context, id uint) (*models.Message, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) DeleteMessage(ctx context.Context, id uint) error {
	return m.Called(id).Error(0)
}

func (m *MockStorage) MarkMessageRead(ctx context.Context, id uint) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) MarkConversationRead(ctx context.Context, readerID, senderID uint) (int64, error) {
	args := m.Called(readerID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) ListMessagesForUser(ctx context.Context, userID uint) ([]models.Message, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) ListConversation(ctx context.Context, userID, otherID uint) ([]models.Message, error) {
	args := m.Called(userID, otherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) CountUnread(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CountUnreadBySender(ctx context.Context, userID uint) ([]models.UnreadCount, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UnreadCount), args.Error(1)
}

func (m *MockStorage) ListConversationSummaries(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

type emitted struct {
	UserID uint
	Event  models.OutboundEvent
}

// recordingEmitter captures every emit in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(ctx context.Context, userID uint, event models.OutboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{UserID: userID, Event: event})
	return nil
}

func (r *recordingEmitter) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

func (r *recordingEmitter) to(userID uint) []models.OutboundEvent {
	var out []models.OutboundEvent
	for _, e := range r.all() {
		if e.UserID == userID {
			out = append(out, e.Event)
		}
	}
	return out
}
