package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RolePatient      = "patient"
	RolePsychologist = "psychologist"
	RoleAdmin        = "admin"
)

// User is the account a connection or HTTP request is bound to.
// Only id, username, photo and role are exposed on the wire.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex" json:"-"`
	Photo     string    `json:"photo"`
	Role      string    `gorm:"type:text;not null;default:patient" json:"role"`
	IsActive  bool      `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// BeforeCreate normalizes the username and fills in a default role.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Role == "" {
		u.Role = RolePatient
	}
	return
}

// Identity is the verified {id, username, role} bound to a connection for its
// whole life.
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}
