// Package retrieval finds knowledge-base context for a tenant's question.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/resilience"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTopK    = 8
	DefaultTimeout = 10 * time.Second
)

// contextSeparator joins retrieved chunks, nearest first.
const contextSeparator = "\n\n"

// ErrPartitionNotFound is returned by an Index when the tenant has no partition.
var ErrPartitionNotFound = errors.New("vector partition not found")

// Status classifies a retrieval outcome.
type Status string

const (
	// StatusOK means at least one chunk was found.
	StatusOK Status = "ok"
	// StatusEmpty means the tenant has no knowledge or nothing matched.
	StatusEmpty Status = "empty"
	// StatusDegraded means an upstream failed and the answer proceeds without context.
	StatusDegraded Status = "degraded"
)

// Result is the outcome of Retrieve. Err is set only when Status is degraded
// and wraps ErrUpstreamUnavailable.
type Result struct {
	Context string
	Status  Status
	Matches int
	Err     error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Entry is a vector stored in a partition.
type Entry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Match is a query hit. Score is cosine similarity, higher is nearer.
type Match struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Index stores vectors in named partitions and answers nearest-neighbour queries.
type Index interface {
	Upsert(ctx context.Context, partition string, entries []Entry) error
	Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error)
}

// PartitionName returns the vector partition that holds a client's knowledge.
func PartitionName(clientID string) string {
	return "client_" + strings.ReplaceAll(clientID, "-", "_")
}

// Config configures a Retriever.
type Config struct {
	TopK    int
	Timeout time.Duration
}

// Retriever embeds a query and looks it up in the tenant's partition. It
// never fails the caller; outages are reported through Result.
type Retriever struct {
	embedder Embedder
	index    Index
	breaker  *resilience.CircuitBreaker
	cfg      Config
	log      *logger.Logger
}

// NewRetriever creates a Retriever. breaker may be nil.
func NewRetriever(embedder Embedder, index Index, breaker *resilience.CircuitBreaker, cfg Config, log *logger.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Retriever{embedder: embedder, index: index, breaker: breaker, cfg: cfg, log: log}
}

// TopK returns the configured default number of chunks.
func (r *Retriever) TopK() int {
	return r.cfg.TopK
}

// Retrieve returns up to k chunks of the client's knowledge nearest to query,
// joined with blank lines. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, clientID, query string, k int) Result {
	if k <= 0 {
		k = r.cfg.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var matches []Match
	call := func(ctx context.Context) error {
		vec, err := r.embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		matches, err = r.index.Query(ctx, PartitionName(clientID), vec, k)
		if errors.Is(err, ErrPartitionNotFound) {
			matches = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("query index: %w", err)
		}
		return nil
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		r.log.Warn("Context retrieval degraded", "client_id", clientID, "error", err.Error())
		return Result{
			Status: StatusDegraded,
			Err:    fmt.Errorf("retrieve context: %w: %w", apperrors.ErrUpstreamUnavailable, err),
		}
	}

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Content != "" {
			texts = append(texts, m.Content)
		}
	}
	if len(texts) == 0 {
		return Result{Status: StatusEmpty}
	}
	return Result{
		Context: strings.Join(texts, contextSeparator),
		Status:  StatusOK,
		Matches: len(texts),
	}
}
