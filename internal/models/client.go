package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client status values.
const (
	ClientStatusActive    = "active"
	ClientStatusSuspended = "suspended"
)

// Plans a client can subscribe to.
const (
	PlanFree  = "free"
	PlanBasic = "basic"
	PlanPro   = "pro"
)

// DefaultRateLimitPerMinute applies to keys issued without an explicit limit.
const DefaultRateLimitPerMinute = 60

// Client is a tenant. Clients are never hard-deleted; suspending one disables
// every key it owns.
type Client struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name            string    `json:"name" gorm:"size:255;not null"`
	Email           string    `json:"email,omitempty" gorm:"size:255;index"`
	Plan            string    `json:"plan" gorm:"size:32;not null;default:free"`
	Status          string    `json:"status" gorm:"size:32;not null;default:active"`
	SystemPrompt    *string   `json:"system_prompt,omitempty" gorm:"type:text"`
	TemplateMessage *string   `json:"template_message,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Client) TableName() string { return "clients" }

// BeforeCreate assigns a UUID when none was set.
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Plan == "" {
		c.Plan = PlanFree
	}
	if c.Status == "" {
		c.Status = ClientStatusActive
	}
	return nil
}

// IsActive reports whether the client may use the API.
func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// APIKey is a credential issued to a client. Only the SHA-256 hash of the
// secret is stored.
type APIKey struct {
	ID                 string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	ClientID           string     `json:"client_id" gorm:"type:varchar(36);not null;index"`
	KeyHash            string     `json:"-" gorm:"size:64;not null;uniqueIndex"`
	KeyPrefix          string     `json:"key_prefix" gorm:"size:16"`
	Name               string     `json:"name,omitempty" gorm:"size:255"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" gorm:"not null;default:60"`
	IsActive           bool       `json:"is_active" gorm:"not null"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (APIKey) TableName() string { return "api_keys" }

// BeforeCreate assigns a UUID and the default limit.
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.RateLimitPerMinute == 0 {
		k.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	return nil
}

// Expired reports whether the key is past its expiry at now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// HashKey returns the stored form of an API key secret: lowercase SHA-256 hex.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the displayable head of a secret.
func KeyPrefix(secret string) string {
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8]
}
