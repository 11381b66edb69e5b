package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	delay   time.Duration
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

type failingIndex struct{ err error }

func (f failingIndex) Upsert(context.Context, string, []Entry) error { return f.err }
func (f failingIndex) Query(context.Context, string, []float32, int) ([]Match, error) {
	return nil, f.err
}

const tenantA = "4f1c2d3e-0000-1111-2222-333344445555"

func seededIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), PartitionName(tenantA), []Entry{
		{ID: "c1", Vector: []float32{1, 0, 0}, Content: "Jam buka: 09.00 - 17.00"},
		{ID: "c2", Vector: []float32{0.9, 0.1, 0}, Content: "Tutup pada hari Minggu"},
		{ID: "c3", Vector: []float32{0, 1, 0}, Content: "Ongkir gratis di atas 100rb"},
	}))
	return idx
}

func TestPartitionName(t *testing.T) {
	assert.Equal(t, "client_4f1c2d3e_0000_1111_2222_333344445555", PartitionName(tenantA))
}

func TestRetriever_JoinsNearestFirst(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"kapan buka?": {1, 0, 0}}}
	r := NewRetriever(emb, seededIndex(t), nil, Config{}, logger.Nop())

	res := r.Retrieve(context.Background(), tenantA, "kapan buka?", 2)
	assert.Equal(t, StatusOK, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Matches)
	assert.Equal(t, "Jam buka: 09.00 - 17.00\n\nTutup pada hari Minggu", res.Context)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, seededIndex(t), nil, Config{}, logger.Nop())
	assert.Equal(t, DefaultTopK, r.TopK())

	res := r.Retrieve(context.Background(), tenantA, "anything", 0)
	assert.Equal(t, 3, res.Matches)
}

func TestRetriever_MissingPartitionIsEmpty(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, seededIndex(t), nil, Config{}, logger.Nop())

	res := r.Retrieve(context.Background(), "other-tenant", "kapan buka?", 8)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.Empty(t, res.Context)
	assert.NoError(t, res.Err)
}

func TestRetriever_TenantIsolation(t *testing.T) {
	idx := seededIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), PartitionName("tenant-b"), []Entry{
		{ID: "b1", Vector: []float32{1, 0, 0}, Content: "tenant b secret"},
	}))
	r := NewRetriever(&stubEmbedder{}, idx, nil, Config{}, logger.Nop())

	res := r.Retrieve(context.Background(), tenantA, "q", 8)
	assert.NotContains(t, res.Context, "tenant b secret")
}

func TestRetriever_EmbeddingOutageDegrades(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("connection refused")}
	r := NewRetriever(emb, seededIndex(t), nil, Config{}, logger.Nop())

	res := r.Retrieve(context.Background(), tenantA, "q", 8)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Empty(t, res.Context)
	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
}

func TestRetriever_IndexOutageDegrades(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, failingIndex{err: errors.New("db down")}, nil, Config{}, logger.Nop())

	res := r.Retrieve(context.Background(), tenantA, "q", 8)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
}

func TestRetriever_TimeoutDegrades(t *testing.T) {
	emb := &stubEmbedder{delay: time.Second}
	r := NewRetriever(emb, seededIndex(t), nil, Config{Timeout: 20 * time.Millisecond}, logger.Nop())

	start := time.Now()
	res := r.Retrieve(context.Background(), tenantA, "q", 8)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetriever_OpenBreakerSkipsUpstream(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("down")}
	breaker := resilience.NewCircuitBreaker(resilience.Config{
		Name: "retrieval", FailureThreshold: 1, Cooldown: time.Hour,
	}, logger.Nop())
	r := NewRetriever(emb, seededIndex(t), breaker, Config{}, logger.Nop())

	_ = r.Retrieve(context.Background(), tenantA, "q", 8)
	res := r.Retrieve(context.Background(), tenantA, "q", 8)

	assert.Equal(t, StatusDegraded, res.Status)
	assert.ErrorIs(t, res.Err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, emb.calls)
}
