package retrieval

import (
	"context"
	"testing"

	"acm-chatbot/backend/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_QueryOrdersBySimilarity(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "p", []Entry{
		{ID: "far", Vector: []float32{0, 1}, Content: "far"},
		{ID: "near", Vector: []float32{1, 0.1}, Content: "near"},
		{ID: "exact", Vector: []float32{2, 0}, Content: "exact"},
	}))

	matches, err := idx.Query(ctx, "p", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "near", matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "p", []Entry{{ID: "a", Vector: []float32{1, 0}, Content: "old"}}))
	require.NoError(t, idx.Upsert(ctx, "p", []Entry{{ID: "a", Vector: []float32{1, 0}, Content: "new"}}))

	matches, err := idx.Query(ctx, "p", []float32{1, 0}, 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Content)
}

func TestMemoryIndex_MissingPartition(t *testing.T) {
	_, err := NewMemoryIndex().Query(context.Background(), "nope", []float32{1}, 1)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestMemoryIndex_DeletePartition(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "p", []Entry{{ID: "a", Vector: []float32{1}}}))
	require.NoError(t, idx.DeletePartition(ctx, "p"))

	_, err := idx.Query(ctx, "p", []float32{1}, 1)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestPgvectorIndex_UpsertAndPartitionLookup(t *testing.T) {
	db := testdb.Open(t)
	idx := NewPgvectorIndex(db)
	require.NoError(t, idx.Migrate())
	ctx := context.Background()

	_, err := idx.Query(ctx, "client_x", []float32{1, 0, 0}, 8)
	assert.ErrorIs(t, err, ErrPartitionNotFound)

	entries := []Entry{
		{ID: "11111111-1111-1111-1111-111111111111", Vector: []float32{1, 0, 0}, Content: "one",
			Metadata: map[string]any{"chunk_index": 0}},
		{ID: "22222222-2222-2222-2222-222222222222", Vector: []float32{0, 1, 0}, Content: "two"},
	}
	require.NoError(t, idx.Upsert(ctx, "client_x", entries))

	entries[0].Content = "one, revised"
	require.NoError(t, idx.Upsert(ctx, "client_x", entries[:1]))

	var rows []VectorEntry
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "one, revised", rows[0].Content)
	assert.Equal(t, "client_x", rows[0].Partition)
	assert.Equal(t, []float32{1, 0, 0}, rows[0].Embedding.Slice())

	var partitions int64
	require.NoError(t, db.Model(&VectorPartition{}).Count(&partitions).Error)
	assert.Equal(t, int64(1), partitions)

	require.NoError(t, idx.DeletePartition(ctx, "client_x"))
	_, err = idx.Query(ctx, "client_x", []float32{1, 0, 0}, 8)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestPgvectorIndex_QueryOrdersBySimilarity(t *testing.T) {
	db := testdb.Open(t)
	idx := NewPgvectorIndex(db)
	require.NoError(t, idx.Migrate())
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "client_a", []Entry{
		{ID: "a-far", Vector: []float32{0, 1, 0}, Content: "far"},
		{ID: "a-near", Vector: []float32{1, 0.2, 0}, Content: "near"},
		{ID: "a-exact", Vector: []float32{3, 0, 0}, Content: "exact", Metadata: map[string]any{"chunk_index": 2}},
		{ID: "a-short", Vector: []float32{1, 0}, Content: "other dimensions"},
	}))

	matches, err := idx.Query(ctx, "client_a", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-exact", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.EqualValues(t, 2, matches[0].Metadata["chunk_index"])
	assert.Equal(t, "a-near", matches[1].ID)

	matches, err = idx.Query(ctx, "client_a", []float32{1, 0, 0}, 8)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestPgvectorIndex_PartitionsAreIsolated(t *testing.T) {
	db := testdb.Open(t)
	idx := NewPgvectorIndex(db)
	require.NoError(t, idx.Migrate())
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "client_a", []Entry{{ID: "a-1", Vector: []float32{0, 1}, Content: "a's refund policy"}}))
	require.NoError(t, idx.Upsert(ctx, "client_b", []Entry{{ID: "b-1", Vector: []float32{1, 0}, Content: "b's refund policy"}}))

	matches, err := idx.Query(ctx, "client_a", []float32{1, 0}, 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].ID)

	matches, err = idx.Query(ctx, "client_b", []float32{1, 0}, 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b-1", matches[0].ID)
}
