package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLog records one billable exchange. Rows are append-only.
type UsageLog struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ClientID  string    `json:"client_id" gorm:"type:varchar(36);not null;index:idx_usage_client_created,priority:1"`
	APIKeyID  string    `json:"api_key_id" gorm:"type:varchar(36);not null;index"`
	Endpoint  string    `json:"endpoint" gorm:"size:128;not null"`
	TokensIn  int       `json:"tokens_in" gorm:"not null;default:0"`
	TokensOut int       `json:"tokens_out" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_usage_client_created,priority:2"`
}

// TableName implements the GORM tabler interface.
func (UsageLog) TableName() string { return "usage_logs" }

// BeforeCreate assigns a UUID when none was set.
func (u *UsageLog) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
