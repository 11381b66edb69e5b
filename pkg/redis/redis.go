// Package redis builds the shared Redis client.
package redis

import (
	"context"
	"fmt"
	"time"

	"acm-chatbot/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a client from the redis section of cfg.
func NewClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Redis.Addr},
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping checks the connection within timeout.
func Ping(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}
