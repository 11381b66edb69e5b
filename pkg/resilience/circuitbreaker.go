package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"acm-chatbot/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the protected function while
// the breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// State represents the current state of a circuit breaker
type State string

const (
	// StateClosed means calls pass through
	StateClosed State = "closed"
	// StateOpen means calls are rejected until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen means a limited number of trial calls are allowed
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	Cooldown         time.Duration
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Stats is a snapshot of breaker counters.
type Stats struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	TotalRequests     uint64    `json:"total_requests"`
	TotalFailures     uint64    `json:"total_failures"`
	TotalSuccesses    uint64    `json:"total_successes"`
	ConsecutiveErrors uint64    `json:"consecutive_errors"`
	OpenCount         uint64    `json:"open_count"`
	LastFailure       time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker guards calls to an upstream service. Consecutive failures
// open it; after Cooldown a half-open trial decides whether it closes again.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu           sync.Mutex
	state        State
	failureCount uint
	successCount uint
	inFlight     uint
	nextAttempt  time.Time
	stats        Stats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
		stats: Stats{Name: cfg.Name},
	}
}

// Execute runs fn through the breaker. Cancellation by the caller is not
// counted as an upstream failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		cb.log.Warn("Circuit breaker rejecting call", "name", cb.cfg.Name)
		return ErrCircuitOpen
	}

	start := cb.now()
	err := fn(ctx)

	switch {
	case err == nil:
		cb.recordSuccess()
	case errors.Is(err, context.Canceled):
		cb.release()
	default:
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
	}
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttempt) {
			return false
		}
		cb.toHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.inFlight+cb.successCount >= cb.cfg.SuccessThreshold {
			return false
		}
	}

	cb.inFlight++
	cb.stats.TotalRequests++
	return true
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.inFlight > 0 {
		cb.inFlight--
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}
	cb.stats.TotalSuccesses++
	cb.stats.ConsecutiveErrors = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}
	cb.stats.TotalFailures++
	cb.stats.ConsecutiveErrors++
	cb.stats.LastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.stats.OpenCount++
	cb.nextAttempt = cb.now().Add(cb.cfg.Cooldown)

	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"next_attempt", cb.nextAttempt.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	return s
}
