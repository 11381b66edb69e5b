package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"acm-chatbot/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 5 * time.Second

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Critical    bool      `json:"critical"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

// Checker runs health checks periodically and reports the last results.
// When a gRPC health server is attached, the overall status is mirrored there.
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
	grpc        *grpchealth.Server

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     DefaultCheckTimeout,
		log:         log,
		stop:        make(chan struct{}),
	}

	checker.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// AttachGRPC mirrors the overall status into srv.
func (c *Checker) AttachGRPC(srv *grpchealth.Server) {
	c.mutex.Lock()
	c.grpc = srv
	c.mutex.Unlock()
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		Critical:    critical,
	}
}

// RunChecks executes all registered health checks. Checks run without the
// lock held so a slow dependency does not block readers.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mutex.RUnlock()

	type outcome struct {
		status      Status
		description string
		err         error
	}
	results := make(map[string]outcome, len(checks))
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := check(checkCtx)
		cancel()
		results[name] = outcome{status, description, err}

		if err != nil {
			c.log.Error("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed", "component", name, "status", string(status))
		}
	}

	now := time.Now()
	c.mutex.Lock()
	for name, r := range results {
		component, ok := c.components[name]
		if !ok {
			continue
		}
		component.Status = r.status
		component.Description = r.description
		component.LastChecked = now
		component.Error = ""
		if r.err != nil {
			component.Error = r.err.Error()
		}
	}
	srv := c.grpc
	c.mutex.Unlock()

	if srv != nil {
		if c.IsSystemHealthy() {
			srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		} else {
			srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}

// Start begins periodic health checks until Stop.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.RunChecks(context.Background())

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks(context.Background())
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends periodic checks.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// GetStatus returns a copy of the current component states
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}
	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// RegisterDatabaseCheck registers a critical database check
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers a critical check for the shared limiter store.
func (c *Checker) RegisterRedisCheck(client redis.UniversalClient) {
	c.RegisterCheck("redis", true, func(ctx context.Context) (Status, string, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return StatusDown, "Redis is unreachable", err
		}
		return StatusUp, "Redis is responding", nil
	})
}

// RegisterAPICheck registers a non-critical check of an HTTP dependency. The
// pipeline degrades instead of failing when such a dependency is down.
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.RegisterCheck(fmt.Sprintf("api-%s", name), false, func(ctx context.Context) (Status, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return StatusDown, "Invalid endpoint", err
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			return StatusDown, "API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return StatusDegraded, fmt.Sprintf("API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return StatusUp, fmt.Sprintf("API is responding (latency: %s)", elapsed), nil
	})
}
