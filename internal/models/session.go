package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession is one conversation between a client's end user and the
// assistant. (client_id, user_identifier) is unique.
type ChatSession struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ClientID       string    `json:"client_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_session_client_external,priority:1"`
	UserIdentifier string    `json:"user_identifier" gorm:"size:255;not null;uniqueIndex:ux_session_client_external,priority:2"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (ChatSession) TableName() string { return "chat_sessions" }

// BeforeCreate assigns a UUID when none was set.
func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ChatMessage is an immutable turn in a session. The autoincrement ID breaks
// ties between messages sharing a timestamp.
type ChatMessage struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID  string    `json:"session_id" gorm:"type:varchar(36);not null;index:idx_messages_session_created,priority:1"`
	Role       string    `json:"role" gorm:"size:16;not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	TokenCount int       `json:"token_count" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_messages_session_created,priority:2"`
}

// TableName implements the GORM tabler interface.
func (ChatMessage) TableName() string { return "chat_messages" }
