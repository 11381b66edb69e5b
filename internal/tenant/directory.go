// Package tenant manages clients and their API keys.
package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/pkg/cache"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"gorm.io/gorm"
)

// DefaultTemplateMessage greets end users of clients without a custom greeting.
const DefaultTemplateMessage = "Halo! Ada yang bisa saya bantu?"

// secretPrefix marks issued API key secrets.
const secretPrefix = "acm_"

var (
	// ErrClientNotFound is returned for unknown client ids.
	ErrClientNotFound = fmt.Errorf("client: %w", apperrors.ErrNotFound)
	// ErrKeyNotFound is returned for unknown key ids or keys of another client.
	ErrKeyNotFound = fmt.Errorf("api key: %w", apperrors.ErrNotFound)
	// ErrInvalidPlan is returned for plans other than free, basic and pro.
	ErrInvalidPlan = fmt.Errorf("plan must be free, basic or pro: %w", apperrors.ErrInvalidInput)
	// ErrInvalidStatus is returned for statuses other than active and suspended.
	ErrInvalidStatus = fmt.Errorf("status must be active or suspended: %w", apperrors.ErrInvalidInput)
	// ErrInvalidName is returned when a client is onboarded without a name.
	ErrInvalidName = fmt.Errorf("client name is required: %w", apperrors.ErrInvalidInput)
)

// Profile is the per-client configuration the chat pipeline reads.
type Profile struct {
	ClientID        string
	Name            string
	Plan            string
	SystemPrompt    *string
	TemplateMessage *string
}

// Greeting returns the client's template message or the default one.
func (p *Profile) Greeting() string {
	if p.TemplateMessage != nil && strings.TrimSpace(*p.TemplateMessage) != "" {
		return *p.TemplateMessage
	}
	return DefaultTemplateMessage
}

// Directory reads and administers clients and keys. Profiles are cached and
// invalidated on every client update.
type Directory struct {
	db       *gorm.DB
	profiles *cache.Cache[*Profile]
	log      *logger.Logger
}

// NewDirectory creates a Directory. profiles may be nil to disable caching.
func NewDirectory(db *gorm.DB, profiles *cache.Cache[*Profile], log *logger.Logger) *Directory {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Directory{db: db, profiles: profiles, log: log}
}

// WithTx returns a directory bound to tx so its writes join the caller's
// transaction.
func (d *Directory) WithTx(tx *gorm.DB) *Directory {
	return &Directory{db: tx, profiles: d.profiles, log: d.log}
}

// Profile returns the client's chat configuration.
func (d *Directory) Profile(ctx context.Context, clientID string) (*Profile, error) {
	if d.profiles != nil {
		if p, ok := d.profiles.Get(clientID); ok {
			return p, nil
		}
	}

	client, err := d.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	p := &Profile{
		ClientID:        client.ID,
		Name:            client.Name,
		Plan:            client.Plan,
		SystemPrompt:    client.SystemPrompt,
		TemplateMessage: client.TemplateMessage,
	}
	if d.profiles != nil {
		d.profiles.Set(clientID, p)
	}
	return p, nil
}

// GetClient returns one client.
func (d *Directory) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	err := d.db.WithContext(ctx).Where("id = ?", clientID).Take(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w: %v", apperrors.ErrPersistence, err)
	}
	return &client, nil
}

// ListClients returns all clients, newest first.
func (d *Directory) ListClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := d.db.WithContext(ctx).Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w: %v", apperrors.ErrPersistence, err)
	}
	return clients, nil
}

// OnboardRequest describes a new client.
type OnboardRequest struct {
	Name               string  `json:"name" binding:"required"`
	Email              string  `json:"email"`
	Plan               string  `json:"plan"`
	SystemPrompt       *string `json:"system_prompt"`
	TemplateMessage    *string `json:"template_message"`
	RateLimitPerMinute int     `json:"rate_limit_per_minute"`
}

// IssuedKey carries a newly created key. Secret is never stored and cannot be
// recovered later.
type IssuedKey struct {
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

// Onboarded is the result of Onboard.
type Onboarded struct {
	Client *models.Client `json:"client"`
	IssuedKey
}

// Onboard creates a client together with its first API key.
func (d *Directory) Onboard(ctx context.Context, req OnboardRequest) (*Onboarded, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidName
	}
	plan := req.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if !validPlan(plan) {
		return nil, ErrInvalidPlan
	}

	client := &models.Client{
		Name:            strings.TrimSpace(req.Name),
		Email:           req.Email,
		Plan:            plan,
		Status:          models.ClientStatusActive,
		SystemPrompt:    req.SystemPrompt,
		TemplateMessage: req.TemplateMessage,
	}

	var issued *IssuedKey
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(client).Error; err != nil {
			return fmt.Errorf("create client: %w: %v", apperrors.ErrPersistence, err)
		}
		var err error
		issued, err = createKey(tx, client.ID, KeyRequest{Name: "default", RateLimitPerMinute: req.RateLimitPerMinute})
		return err
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("Client onboarded", "client_id", client.ID, "plan", client.Plan, "api_key_id", issued.Key.ID)
	return &Onboarded{Client: client, IssuedKey: *issued}, nil
}

// ClientUpdate changes selected client fields. Nil fields are left untouched.
type ClientUpdate struct {
	Name            *string `json:"name"`
	Plan            *string `json:"plan"`
	Status          *string `json:"status"`
	SystemPrompt    *string `json:"system_prompt"`
	TemplateMessage *string `json:"template_message"`
}

// UpdateClient applies update and drops the cached profile.
func (d *Directory) UpdateClient(ctx context.Context, clientID string, update ClientUpdate) (*models.Client, error) {
	changes := map[string]any{}
	if update.Name != nil {
		if strings.TrimSpace(*update.Name) == "" {
			return nil, ErrInvalidName
		}
		changes["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Plan != nil {
		if !validPlan(*update.Plan) {
			return nil, ErrInvalidPlan
		}
		changes["plan"] = *update.Plan
	}
	if update.Status != nil {
		if *update.Status != models.ClientStatusActive && *update.Status != models.ClientStatusSuspended {
			return nil, ErrInvalidStatus
		}
		changes["status"] = *update.Status
	}
	if update.SystemPrompt != nil {
		changes["system_prompt"] = nullable(*update.SystemPrompt)
	}
	if update.TemplateMessage != nil {
		changes["template_message"] = nullable(*update.TemplateMessage)
	}

	client, err := d.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return client, nil
	}

	if err := d.db.WithContext(ctx).Model(client).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update client: %w: %v", apperrors.ErrPersistence, err)
	}
	if d.profiles != nil {
		d.profiles.Delete(clientID)
	}

	d.log.Info("Client updated", "client_id", clientID, "fields", len(changes))
	return d.GetClient(ctx, clientID)
}

// KeyRequest describes a key to issue.
type KeyRequest struct {
	Name               string     `json:"name"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	ExpiresAt          *time.Time `json:"expires_at"`
}

// IssueKey creates another key for an existing client.
func (d *Directory) IssueKey(ctx context.Context, clientID string, req KeyRequest) (*IssuedKey, error) {
	if _, err := d.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	issued, err := createKey(d.db.WithContext(ctx), clientID, req)
	if err != nil {
		return nil, err
	}
	d.log.Info("API key issued", "client_id", clientID, "api_key_id", issued.Key.ID)
	return issued, nil
}

// ListKeys returns the client's keys without their secrets.
func (d *Directory) ListKeys(ctx context.Context, clientID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := d.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at DESC").Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys: %w: %v", apperrors.ErrPersistence, err)
	}
	return keys, nil
}

// RevokeKey deactivates a key. Revoking twice is not an error.
func (d *Directory) RevokeKey(ctx context.Context, clientID, keyID string) error {
	res := d.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND client_id = ?", keyID, clientID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("revoke key: %w: %v", apperrors.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	d.log.Info("API key revoked", "client_id", clientID, "api_key_id", keyID)
	return nil
}

func createKey(db *gorm.DB, clientID string, req KeyRequest) (*IssuedKey, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	limit := req.RateLimitPerMinute
	if limit <= 0 {
		limit = models.DefaultRateLimitPerMinute
	}

	key := &models.APIKey{
		ClientID:           clientID,
		KeyHash:            models.HashKey(secret),
		KeyPrefix:          models.KeyPrefix(secret),
		Name:               req.Name,
		RateLimitPerMinute: limit,
		IsActive:           true,
		ExpiresAt:          req.ExpiresAt,
	}
	if err := db.Create(key).Error; err != nil {
		return nil, fmt.Errorf("create key: %w: %v", apperrors.ErrPersistence, err)
	}
	return &IssuedKey{Key: key, Secret: secret}, nil
}

// GenerateSecret returns a new random API key secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

func validPlan(plan string) bool {
	switch plan {
	case models.PlanFree, models.PlanBasic, models.PlanPro:
		return true
	}
	return false
}

// nullable maps a blank string to NULL so the default applies again.
func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
