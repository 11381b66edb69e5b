package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/tenant"
	"acm-chatbot/backend/internal/testdb"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB, *jwt.Service) {
	t.Helper()
	db := testdb.Open(t)
	tokens, err := jwt.NewService("account-test-secret", time.Hour, "acm-chatbot")
	require.NoError(t, err)
	log := logger.Nop()
	return NewService(db, tenant.NewDirectory(db, nil, log), tokens, log), db, tokens
}

func register(t *testing.T, s *Service, email string) *Session {
	t.Helper()
	out, err := s.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: "s3cret-pass",
		Name:     "Globex",
		Plan:     models.PlanBasic,
	})
	require.NoError(t, err)
	return out
}

func TestRegisterCreatesUserClientAndKey(t *testing.T) {
	s, db, tokens := newService(t)

	out := register(t, s, " Owner@Globex.test ")

	assert.Equal(t, "owner@globex.test", out.User.Email)
	assert.Equal(t, models.UserRoleClient, out.User.Role)
	assert.NotEqual(t, "s3cret-pass", out.User.PasswordHash)
	assert.Equal(t, "Globex", out.Client.Name)
	assert.Equal(t, models.PlanBasic, out.Client.Plan)
	assert.Equal(t, models.ClientStatusActive, out.Client.Status)
	require.NotNil(t, out.Key)
	assert.Equal(t, RegisteredKeyRateLimit, out.Key.RateLimitPerMinute)
	assert.Equal(t, models.HashKey(out.Secret), out.Key.KeyHash)

	claims, err := tokens.ValidateToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims.Subject)
	assert.True(t, claims.HasRole(jwt.RoleClient))
	assert.False(t, claims.HasRole(jwt.RoleAdmin))

	var link models.UserClient
	require.NoError(t, db.Where("user_id = ?", out.User.ID).Take(&link).Error)
	assert.Equal(t, out.Client.ID, link.ClientID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	s, db, _ := newService(t)
	register(t, s, "owner@globex.test")

	_, err := s.Register(context.Background(), RegisterRequest{
		Email: "OWNER@globex.test", Password: "another-pass", Name: "Initech",
	})

	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	var clients int64
	require.NoError(t, db.Model(&models.Client{}).Count(&clients).Error)
	assert.Equal(t, int64(1), clients)
}

func TestRegisterValidation(t *testing.T) {
	s, db, _ := newService(t)

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"bad email", RegisterRequest{Email: "nobody", Password: "long-enough", Name: "X"}, ErrInvalidEmail},
		{"short password", RegisterRequest{Email: "a@b.test", Password: "short", Name: "X"}, ErrWeakPassword},
		{"unknown plan", RegisterRequest{Email: "a@b.test", Password: "long-enough", Name: "X", Plan: "platinum"}, tenant.ErrInvalidPlan},
		{"missing name", RegisterRequest{Email: "a@b.test", Password: "long-enough"}, tenant.ErrInvalidName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	// A rejected onboarding leaves no orphaned user behind
	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func TestLogin(t *testing.T) {
	s, db, _ := newService(t)
	registered := register(t, s, "owner@globex.test")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	out, err := s.Login(context.Background(), LoginRequest{Email: "owner@globex.test", Password: "s3cret-pass"})
	require.NoError(t, err)

	assert.NotEmpty(t, out.Token)
	assert.Equal(t, registered.User.ID, out.User.ID)
	assert.Equal(t, registered.Client.ID, out.Client.ID)
	require.NotNil(t, out.Key)
	assert.Equal(t, registered.Key.ID, out.Key.ID)
	assert.Empty(t, out.Secret)

	var stored models.User
	require.NoError(t, db.Where("id = ?", out.User.ID).Take(&stored).Error)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(now))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s, _, _ := newService(t)
	register(t, s, "owner@globex.test")

	_, wrongPassword := s.Login(context.Background(), LoginRequest{Email: "owner@globex.test", Password: "guess"})
	_, unknownUser := s.Login(context.Background(), LoginRequest{Email: "ghost@globex.test", Password: "s3cret-pass"})

	assert.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredential)
	assert.ErrorIs(t, unknownUser, apperrors.ErrInvalidCredential)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLoginWithoutClient(t *testing.T) {
	s, db, _ := newService(t)
	hash, err := models.HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{Email: "orphan@globex.test", PasswordHash: hash}).Error)

	_, err = s.Login(context.Background(), LoginRequest{Email: "orphan@globex.test", Password: "s3cret-pass"})

	assert.ErrorIs(t, err, ErrNoLinkedClient)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMe(t *testing.T) {
	s, db, _ := newService(t)
	registered := register(t, s, "owner@globex.test")

	profile, err := s.Me(context.Background(), registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.Client.ID, profile.Client.ID)
	require.NotNil(t, profile.Key)
	assert.Equal(t, registered.Key.ID, profile.Key.ID)

	// Revoked keys are not reported as the active key
	require.NoError(t, db.Model(&models.APIKey{}).Where("id = ?", registered.Key.ID).Update("is_active", false).Error)
	profile, err = s.Me(context.Background(), registered.User.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.Key)

	_, err = s.Me(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
