package tenant

import (
	"context"
	"strings"
	"testing"
	"time"

	"acm-chatbot/backend/internal/identity"
	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/testdb"
	"acm-chatbot/backend/pkg/cache"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDirectory(t *testing.T) (*Directory, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	profiles := cache.New[*Profile](cache.Options{DefaultExpiration: time.Minute})
	t.Cleanup(profiles.Close)
	return NewDirectory(db, profiles, logger.Nop()), db
}

func strPtr(s string) *string { return &s }

func TestOnboard_CreatesClientAndWorkingKey(t *testing.T) {
	dir, db := newDirectory(t)
	ctx := context.Background()

	out, err := dir.Onboard(ctx, OnboardRequest{Name: "  Toko ABC ", Plan: models.PlanBasic, RateLimitPerMinute: 30})
	require.NoError(t, err)

	assert.Equal(t, "Toko ABC", out.Client.Name)
	assert.Equal(t, models.PlanBasic, out.Client.Plan)
	assert.True(t, strings.HasPrefix(out.Secret, secretPrefix))
	assert.Equal(t, 30, out.Key.RateLimitPerMinute)
	assert.NotEqual(t, out.Secret, out.Key.KeyHash, "secret is not stored in clear")

	tenantCtx, err := identity.NewStore(db).Resolve(ctx, out.Secret)
	require.NoError(t, err)
	assert.Equal(t, out.Client.ID, tenantCtx.ClientID)
	assert.Equal(t, out.Key.ID, tenantCtx.APIKeyID)
	assert.Equal(t, 30, tenantCtx.RateLimitPerMinute)
}

func TestOnboard_Defaults(t *testing.T) {
	dir, _ := newDirectory(t)

	out, err := dir.Onboard(context.Background(), OnboardRequest{Name: "Klinik"})
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, out.Client.Plan)
	assert.Equal(t, models.DefaultRateLimitPerMinute, out.Key.RateLimitPerMinute)
}

func TestOnboard_Validation(t *testing.T) {
	dir, db := newDirectory(t)
	ctx := context.Background()

	_, err := dir.Onboard(ctx, OnboardRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = dir.Onboard(ctx, OnboardRequest{Name: "x", Plan: "enterprise"})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	var count int64
	require.NoError(t, db.Model(&models.Client{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProfile_GreetingFallsBackToDefault(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	plain, err := dir.Onboard(ctx, OnboardRequest{Name: "plain"})
	require.NoError(t, err)
	custom, err := dir.Onboard(ctx, OnboardRequest{Name: "custom", TemplateMessage: strPtr("Selamat datang di Toko ABC")})
	require.NoError(t, err)

	p, err := dir.Profile(ctx, plain.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplateMessage, p.Greeting())

	p, err = dir.Profile(ctx, custom.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Selamat datang di Toko ABC", p.Greeting())
}

func TestProfile_UnknownClient(t *testing.T) {
	dir, _ := newDirectory(t)

	_, err := dir.Profile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateClient_InvalidatesCachedProfile(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	out, err := dir.Onboard(ctx, OnboardRequest{Name: "toko"})
	require.NoError(t, err)

	p, err := dir.Profile(ctx, out.Client.ID)
	require.NoError(t, err)
	assert.Nil(t, p.SystemPrompt)

	updated, err := dir.UpdateClient(ctx, out.Client.ID, ClientUpdate{
		SystemPrompt: strPtr("Jawab singkat."),
		Plan:         strPtr(models.PlanPro),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, updated.Plan)

	p, err = dir.Profile(ctx, out.Client.ID)
	require.NoError(t, err)
	require.NotNil(t, p.SystemPrompt)
	assert.Equal(t, "Jawab singkat.", *p.SystemPrompt)

	// A blank value clears the field.
	_, err = dir.UpdateClient(ctx, out.Client.ID, ClientUpdate{SystemPrompt: strPtr(" ")})
	require.NoError(t, err)
	p, err = dir.Profile(ctx, out.Client.ID)
	require.NoError(t, err)
	assert.Nil(t, p.SystemPrompt)
}

func TestUpdateClient_SuspendDisablesKeys(t *testing.T) {
	dir, db := newDirectory(t)
	ctx := context.Background()

	out, err := dir.Onboard(ctx, OnboardRequest{Name: "toko"})
	require.NoError(t, err)

	_, err = dir.UpdateClient(ctx, out.Client.ID, ClientUpdate{Status: strPtr(models.ClientStatusSuspended)})
	require.NoError(t, err)

	_, err = identity.NewStore(db).Resolve(ctx, out.Secret)
	assert.ErrorIs(t, err, identity.ErrInvalidCredential)
}

func TestUpdateClient_Validation(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	out, err := dir.Onboard(ctx, OnboardRequest{Name: "toko"})
	require.NoError(t, err)

	_, err = dir.UpdateClient(ctx, out.Client.ID, ClientUpdate{Status: strPtr("deleted")})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = dir.UpdateClient(ctx, out.Client.ID, ClientUpdate{Plan: strPtr("gold")})
	assert.ErrorIs(t, err, ErrInvalidPlan)
	_, err = dir.UpdateClient(ctx, "missing", ClientUpdate{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestIssueListRevokeKeys(t *testing.T) {
	dir, db := newDirectory(t)
	ctx := context.Background()
	resolver := identity.NewStore(db)

	out, err := dir.Onboard(ctx, OnboardRequest{Name: "toko"})
	require.NoError(t, err)

	second, err := dir.IssueKey(ctx, out.Client.ID, KeyRequest{Name: "widget", RateLimitPerMinute: 5})
	require.NoError(t, err)
	assert.NotEqual(t, out.Secret, second.Secret)

	keys, err := dir.ListKeys(ctx, out.Client.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, dir.RevokeKey(ctx, out.Client.ID, second.Key.ID))
	require.NoError(t, dir.RevokeKey(ctx, out.Client.ID, second.Key.ID))

	_, err = resolver.Resolve(ctx, second.Secret)
	assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	_, err = resolver.Resolve(ctx, out.Secret)
	assert.NoError(t, err, "other keys keep working")
}

func TestRevokeKey_ScopedToClient(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	a, err := dir.Onboard(ctx, OnboardRequest{Name: "a"})
	require.NoError(t, err)
	b, err := dir.Onboard(ctx, OnboardRequest{Name: "b"})
	require.NoError(t, err)

	err = dir.RevokeKey(ctx, a.Client.ID, b.Key.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = dir.IssueKey(ctx, "missing", KeyRequest{})
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestListClients(t *testing.T) {
	dir, _ := newDirectory(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := dir.Onboard(ctx, OnboardRequest{Name: name})
		require.NoError(t, err)
	}

	clients, err := dir.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 3)
}

func TestGenerateSecret_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, s, len(secretPrefix)+48)
		assert.False(t, seen[s])
		seen[s] = true
	}
}
