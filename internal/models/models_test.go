package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Second)

	assert.False(t, (&APIKey{}).Expired(now), "keys without expiry never expire")
	assert.True(t, (&APIKey{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&APIKey{ExpiresAt: &now}).Expired(now), "expiry is exclusive")
	assert.False(t, (&APIKey{ExpiresAt: &future}).Expired(now))
}

func TestClientIsActive(t *testing.T) {
	assert.True(t, (&Client{Status: ClientStatusActive}).IsActive())
	assert.False(t, (&Client{Status: ClientStatusSuspended}).IsActive())
	assert.False(t, (&Client{}).IsActive())
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPasswordHash("s3cret-pass", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
	assert.False(t, CheckPasswordHash("s3cret-pass", ""))
}
