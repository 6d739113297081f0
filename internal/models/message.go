package models

import (
	"time"

	"gorm.io/gorm"
)

// Attachment describes a stored file referenced by a message.
type Attachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	MimeType string `json:"mimetype"`
	Size     int64  `json:"size"`
}

// Message is a persisted direct message between two users.
// DeletedAt makes deletes soft; soft-deleted rows are invisible to queries.
type Message struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Content     string         `gorm:"type:text;not null;default:''" json:"content"`
	IsRead      bool           `gorm:"not null;default:false;index" json:"isRead"`
	SenderID    uint           `gorm:"not null;index:idx_pair" json:"senderId"`
	ReceiverID  uint           `gorm:"not null;index:idx_pair;index" json:"receiverId"`
	Attachments []Attachment   `gorm:"type:text;serializer:json" json:"attachments"`
	CreatedAt   time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Sender   *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver *User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

// BeforeCreate stores an empty attachment list as [] rather than null.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	m.normalize()
	return nil
}

// AfterFind keeps attachments a list on the wire for rows written as null.
func (m *Message) AfterFind(tx *gorm.DB) error {
	m.normalize()
	return nil
}

func (m *Message) normalize() {
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID uint) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the other participant for userID.
func (m *Message) Counterpart(userID uint) uint {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	User        User     `json:"user"`
	LastMessage *Message `json:"lastMessage"`
	UnreadCount int64    `json:"unreadCount"`
}

// UnreadCount is the number of unread messages from one sender.
type UnreadCount struct {
	SenderID uint  `json:"senderId"`
	Count    int64 `json:"count"`
}
