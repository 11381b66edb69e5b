package redis

import (
	"context"
	"testing"
	"time"

	"acm-chatbot/backend/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientUsesConfiguredAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Load()
	cfg.Redis.Addr = mr.Addr()

	client := NewClient(cfg)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, Ping(context.Background(), client, time.Second))
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestPingFailsWhenServerIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Load()
	cfg.Redis.Addr = mr.Addr()
	mr.Close()

	client := NewClient(cfg)
	t.Cleanup(func() { client.Close() })

	assert.Error(t, Ping(context.Background(), client, 200*time.Millisecond))
}
