package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "acm-chatbot/backend/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally records in one round
// trip. Time comes from the server so every instance shares one clock.
// Returns {admitted, oldest score, now} in milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, tonumber(oldest[2]), now}
end
redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window)
return {1, now, now}
`)

// RedisSlidingWindow keeps each key's window in a Redis sorted set scored by
// admission time in milliseconds.
type RedisSlidingWindow struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
}

// NewRedisSlidingWindow creates a Redis-backed limiter.
func NewRedisSlidingWindow(client redis.UniversalClient, window time.Duration) *RedisSlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisSlidingWindow{
		client: client,
		window: window,
		prefix: "ratelimit:key:",
	}
}

// Admit implements Limiter.
func (r *RedisSlidingWindow) Admit(ctx context.Context, key string, limit int) error {
	if limit <= 0 {
		return &ExceededError{Key: key, Limit: limit, RetryAfter: r.window}
	}

	windowMs := r.window.Milliseconds()

	res, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		windowMs, limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return fmt.Errorf("rate limit store: %w: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	if len(res) != 3 {
		return fmt.Errorf("rate limit store: %w: unexpected reply %v", apperrors.ErrUpstreamUnavailable, res)
	}

	if res[0] == 1 {
		return nil
	}
	retry := time.Duration(res[1]+windowMs-res[2]) * time.Millisecond
	return &ExceededError{Key: key, Limit: limit, RetryAfter: retry}
}
