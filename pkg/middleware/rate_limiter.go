package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the per-IP flood guard. It sits in front of
// the per-key chat limiter and only stops abusive sources.
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// CleanupInterval defines how often idle clients are dropped
	CleanupInterval time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:           20,
		Burst:           40,
		ExpiryDuration:  10 * time.Minute,
		CleanupInterval: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements token-bucket rate limiting middleware for Gin
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine,
// which runs until Close.
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}

	r := &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.cleanup()
	return r
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		if !r.getLimiter(key).Allow() {
			r.logger.Warn("Flood guard tripped",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			retry := 1
			if r.options.Limit > 0 {
				retry = int(math.Ceil(1 / float64(r.options.Limit)))
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimitExceeded, "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Len returns the number of tracked clients.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close stops the cleanup goroutine.
func (r *RateLimiter) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (r *RateLimiter) cleanup() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			for k, v := range r.clients {
				if time.Since(v.lastSeen) > r.options.ExpiryDuration {
					delete(r.clients, k)
				}
			}
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}
