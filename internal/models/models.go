package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string  `gorm:"not null"`
	Email        *string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary 是对外暴露的用户公开信息。
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (u User) Summary() UserSummary {
	s := UserSummary{ID: u.ID, Username: u.Username}
	if u.Email != nil {
		s.Email = *u.Email
	}
	return s
}

type MessageType string

const MessageTypeText MessageType = "text"

// Message 为一对一私信。IsRecalled/RecalledAt 为撤回功能预留，目前没有任何读写路径。
type Message struct {
	ID         string      `gorm:"primaryKey;size:36"`
	Content    string      `gorm:"type:text;not null"`
	Type       MessageType `gorm:"size:32;not null"`
	SenderID   uint        `gorm:"index:idx_msg_pair,priority:1;not null"`
	ReceiverID uint        `gorm:"index:idx_msg_pair,priority:2;index:idx_msg_unread,priority:1;not null"`
	IsRead     bool        `gorm:"index:idx_msg_unread,priority:2;not null;default:false"`
	IsRecalled bool        `gorm:"not null;default:false"`
	RecalledAt *time.Time
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time

	Sender   User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE"`
	Receiver User `gorm:"foreignKey:ReceiverID;constraint:OnDelete:CASCADE"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"uniqueIndex;size:512;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	IsRevoked bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
