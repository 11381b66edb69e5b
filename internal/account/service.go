// Package account lets client operators register, log in and inspect the
// client they operate.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/tenant"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"

	"gorm.io/gorm"
)

// Registration defaults.
const (
	MinPasswordLength = 8
	// RegisteredKeyRateLimit is the per-minute limit of the key issued at registration.
	RegisteredKeyRateLimit = 10
)

var (
	ErrEmailTaken = fmt.Errorf("email already registered: %w", apperrors.ErrConflict)
	// ErrInvalidLogin is returned for an unknown email and a wrong password alike.
	ErrInvalidLogin   = fmt.Errorf("invalid email or password: %w", apperrors.ErrInvalidCredential)
	ErrWeakPassword   = fmt.Errorf("password must have at least %d characters: %w", MinPasswordLength, apperrors.ErrInvalidInput)
	ErrInvalidEmail   = fmt.Errorf("a valid email is required: %w", apperrors.ErrInvalidInput)
	ErrUserNotFound   = fmt.Errorf("user: %w", apperrors.ErrNotFound)
	ErrNoLinkedClient = fmt.Errorf("no client linked to user: %w", apperrors.ErrNotFound)
)

// RegisterRequest is the request structure for operator registration
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Plan     string `json:"plan"`
}

// LoginRequest is the request structure for operator login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Profile is a user with the client it operates and that client's active key.
// Key never carries the secret.
type Profile struct {
	User   *models.User   `json:"user"`
	Client *models.Client `json:"client"`
	Key    *models.APIKey `json:"api_key,omitempty"`
}

// Session is returned by Register and Login. Secret is only set at
// registration, the one time the key secret exists in plaintext.
type Session struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile
	Secret string `json:"api_key_secret,omitempty"`
}

// Service handles operator accounts
type Service struct {
	db        *gorm.DB
	directory *tenant.Directory
	tokens    *jwt.Service
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new account service
func NewService(db *gorm.DB, directory *tenant.Directory, tokens *jwt.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Service{db: db, directory: directory, tokens: tokens, log: log, now: time.Now}
}

// Register creates a user, onboards its client with a first key and links
// the two. Everything is written in one transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := models.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: hash, Role: models.UserRoleClient}
	var onboarded *tenant.Onboarded
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("check email: %w: %v", apperrors.ErrPersistence, err)
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return fmt.Errorf("create user: %w: %v", apperrors.ErrPersistence, err)
		}

		var err error
		onboarded, err = s.directory.WithTx(tx).Onboard(ctx, tenant.OnboardRequest{
			Name:               req.Name,
			Email:              email,
			Plan:               req.Plan,
			RateLimitPerMinute: RegisteredKeyRateLimit,
		})
		if err != nil {
			return err
		}

		link := &models.UserClient{UserID: user.ID, ClientID: onboarded.Client.ID}
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("link user to client: %w: %v", apperrors.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := s.issue(Profile{User: user, Client: onboarded.Client, Key: onboarded.Key})
	if err != nil {
		return nil, err
	}
	out.Secret = onboarded.Secret

	s.log.Info("Operator registered", "user_id", user.ID, "client_id", onboarded.Client.ID)
	return out, nil
}

// Login authenticates an operator and returns a token with its client
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w: %v", apperrors.ErrPersistence, err)
	}

	if !models.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, ErrInvalidLogin
	}

	profile, err := s.profile(ctx, &user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		s.log.LogError(err, "Failed to record last login", "user_id", user.ID)
	} else {
		user.LastLogin = &now
	}

	s.log.Info("Operator logged in", "user_id", user.ID, "client_id", profile.Client.ID)
	return s.issue(*profile)
}

// Me returns the profile of userID
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w: %v", apperrors.ErrPersistence, err)
	}
	return s.profile(ctx, &user)
}

func (s *Service) profile(ctx context.Context, user *models.User) (*Profile, error) {
	db := s.db.WithContext(ctx)

	var client models.Client
	err := db.Joins("JOIN user_clients uc ON uc.client_id = clients.id").
		Where("uc.user_id = ?", user.ID).
		Order("uc.created_at").
		Take(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoLinkedClient
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w: %v", apperrors.ErrPersistence, err)
	}

	out := &Profile{User: user, Client: &client}

	var key models.APIKey
	err = db.Where("client_id = ? AND is_active = ?", client.ID, true).
		Order("created_at").
		Take(&key).Error
	switch {
	case err == nil:
		out.Key = &key
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load api key: %w: %v", apperrors.ErrPersistence, err)
	}
	return out, nil
}

func (s *Service) issue(p Profile) (*Session, error) {
	token, expires, err := s.tokens.GenerateToken(p.User.ID, jwt.RoleClient)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, TokenType: "bearer", ExpiresAt: expires, Profile: p}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
