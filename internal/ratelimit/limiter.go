// Package ratelimit admits requests against a per-credential sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "acm-chatbot/backend/pkg/errors"
)

// DefaultWindow is the length of the sliding window.
const DefaultWindow = time.Minute

// ErrRateLimitExceeded is matched by every rejection returned from Admit.
var ErrRateLimitExceeded = apperrors.ErrRateLimited

// Limiter admits or rejects one request for key. A rejection has no side
// effect on the key's window.
type Limiter interface {
	Admit(ctx context.Context, key string, limit int) error
}

// ExceededError reports a rejection and when the oldest admission in the
// window expires.
type ExceededError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d per window exceeded for %s", e.Limit, e.Key)
}

// Unwrap lets errors.Is match ErrRateLimitExceeded.
func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum one.
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
