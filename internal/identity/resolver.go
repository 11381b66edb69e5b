// Package identity resolves API key secrets into tenant contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"acm-chatbot/backend/internal/models"
	apperrors "acm-chatbot/backend/pkg/errors"

	"gorm.io/gorm"
)

// ErrInvalidCredential is returned for every rejected secret, whatever the reason.
var ErrInvalidCredential = apperrors.ErrInvalidCredential

// TenantContext is the verified identity of a request. Every step after
// resolution is scoped by ClientID.
type TenantContext struct {
	ClientID           string
	ClientName         string
	Plan               string
	APIKeyID           string
	RateLimitPerMinute int
}

// Resolver turns a presented secret into a TenantContext.
type Resolver interface {
	Resolve(ctx context.Context, secret string) (*TenantContext, error)
}

// Store resolves credentials against the relational store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a credential store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type credentialRow struct {
	APIKeyID           string
	ClientID           string
	IsActive           bool
	ExpiresAt          *time.Time
	RateLimitPerMinute int
	ClientName         string
	Plan               string
	Status             string
}

// Resolve looks up the key by the hash of secret and requires an active,
// unexpired key owned by an active client.
func (s *Store) Resolve(ctx context.Context, secret string) (*TenantContext, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrInvalidCredential
	}

	var row credentialRow
	err := s.db.WithContext(ctx).
		Table("api_keys AS ak").
		Select(`ak.id AS api_key_id, ak.client_id, ak.is_active, ak.expires_at,
			ak.rate_limit_per_minute, c.name AS client_name, c.plan, c.status`).
		Joins("JOIN clients c ON c.id = ak.client_id").
		Where("ak.key_hash = ?", models.HashKey(secret)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w: %v", apperrors.ErrPersistence, err)
	}

	key := models.APIKey{IsActive: row.IsActive, ExpiresAt: row.ExpiresAt}
	client := models.Client{Status: row.Status}
	if !key.IsActive || !client.IsActive() || key.Expired(s.now()) {
		return nil, ErrInvalidCredential
	}

	return &TenantContext{
		ClientID:           row.ClientID,
		ClientName:         row.ClientName,
		Plan:               row.Plan,
		APIKeyID:           row.APIKeyID,
		RateLimitPerMinute: row.RateLimitPerMinute,
	}, nil
}
