// Package generation produces assistant replies from an assembled prompt.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"acm-chatbot/backend/internal/ollama"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/resilience"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 120 * time.Second

// ErrGenerationUnavailable covers timeouts, transport failures, non-2xx
// replies and empty or malformed bodies. It matches ErrUpstreamUnavailable.
var ErrGenerationUnavailable = fmt.Errorf("generation service unavailable: %w", apperrors.ErrUpstreamUnavailable)

// Generator turns a prompt into reply text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Completer is the upstream call a Client wraps.
type Completer interface {
	Generate(ctx context.Context, model, prompt string) (*ollama.GenerateResponse, error)
}

// Config configures a Client.
type Config struct {
	Model   string
	Timeout time.Duration
}

// Client calls the language model once per prompt with a hard timeout and
// no retries. A circuit breaker fails fast while the upstream is down.
type Client struct {
	upstream Completer
	breaker  *resilience.CircuitBreaker
	cfg      Config
	log      *logger.Logger
}

// NewClient creates a generation client.
func NewClient(upstream Completer, breaker *resilience.CircuitBreaker, cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Client{upstream: upstream, breaker: breaker, cfg: cfg, log: log}
}

// Generate returns the trimmed model reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reply string
	call := func(ctx context.Context) error {
		resp, err := c.upstream.Generate(ctx, c.cfg.Model, prompt)
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(resp.Response)
		if reply == "" {
			return errors.New("empty reply")
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		c.log.Warn("Generation failed", "model", c.cfg.Model, "error", err.Error())
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return reply, nil
}
