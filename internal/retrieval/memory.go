package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index using exhaustive cosine similarity.
// Used in development and tests.
type MemoryIndex struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Entry
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{partitions: make(map[string]map[string]Entry)}
}

// Upsert implements Index. The partition is created on first write.
func (m *MemoryIndex) Upsert(ctx context.Context, partition string, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[partition]
	if !ok {
		p = make(map[string]Entry)
		m.partitions[partition] = p
	}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %s has no vector", e.ID)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		p[e.ID] = e
	}
	return nil
}

// Query implements Index.
func (m *MemoryIndex) Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[partition]
	if !ok {
		return nil, ErrPartitionNotFound
	}

	matches := make([]Match, 0, len(p))
	for _, e := range p {
		if len(e.Vector) != len(vector) {
			continue
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Content:  e.Content,
			Score:    cosineSimilarity(vector, e.Vector),
			Metadata: e.Metadata,
		})
	}

	return rank(matches, k), nil
}

// DeletePartition drops every entry of a partition.
func (m *MemoryIndex) DeletePartition(ctx context.Context, partition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, partition)
	return nil
}

// rank orders matches by descending score, ties by id, and keeps the first k.
func rank(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
