// Package testdb opens throwaway SQLite databases carrying the relational
// schema for package tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"acm-chatbot/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory database private to t. Extra models are
// migrated after the relational schema.
func Open(t testing.TB, extra ...any) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	if len(extra) > 0 {
		require.NoError(t, db.AutoMigrate(extra...))
	}
	return db
}

// Tenant is a seeded client with one key. Secret is the plaintext key, which
// is never stored.
type Tenant struct {
	Client *models.Client
	Key    *models.APIKey
	Secret string
}

// SeedTenant inserts an active client with one active key allowing limit
// requests per minute.
func SeedTenant(t testing.TB, db *gorm.DB, name string, limit int) Tenant {
	t.Helper()

	client := &models.Client{Name: name, Plan: models.PlanPro, Status: models.ClientStatusActive}
	require.NoError(t, db.Create(client).Error)

	secret := "sk-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := &models.APIKey{
		ClientID:           client.ID,
		KeyHash:            models.HashKey(secret),
		KeyPrefix:          models.KeyPrefix(secret),
		RateLimitPerMinute: limit,
		IsActive:           true,
	}
	require.NoError(t, db.Create(key).Error)

	return Tenant{Client: client, Key: key, Secret: secret}
}
