package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingDimensions matches nomic-embed-text.
const EmbeddingDimensions = 768

// VectorPartition registers one tenant's vector space.
type VectorPartition struct {
	Name      string            `gorm:"size:128;primaryKey"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (VectorPartition) TableName() string { return "vector_partitions" }

// VectorEntry is one stored chunk vector.
type VectorEntry struct {
	ID        string            `gorm:"type:varchar(36);primaryKey"`
	Partition string            `gorm:"column:partition_name;size:128;not null;index"`
	Content   string            `gorm:"type:text;not null"`
	Embedding pgvector.Vector   `gorm:"type:vector(768);not null"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (VectorEntry) TableName() string { return "vector_entries" }

// PgvectorIndex stores vectors in PostgreSQL with the pgvector extension.
// Partitions are rows in vector_partitions; distance is cosine (<=>). On
// other dialects the partition is ranked in process with the same metric.
type PgvectorIndex struct {
	db *gorm.DB
}

// NewPgvectorIndex creates an index over db.
func NewPgvectorIndex(db *gorm.DB) *PgvectorIndex {
	return &PgvectorIndex{db: db}
}

// Migrate creates the vector tables and the cosine HNSW index.
func (p *PgvectorIndex) Migrate() error {
	if err := p.db.AutoMigrate(&VectorPartition{}, &VectorEntry{}); err != nil {
		return fmt.Errorf("failed to migrate vector tables: %w", err)
	}
	if p.db.Dialector.Name() == "postgres" {
		err := p.db.Exec(`CREATE INDEX IF NOT EXISTS idx_vector_entries_embedding
			ON vector_entries USING hnsw (embedding vector_cosine_ops)`).Error
		if err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}
	return nil
}

// Upsert implements Index.
func (p *PgvectorIndex) Upsert(ctx context.Context, partition string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	checkDims := p.db.Dialector.Name() == "postgres"
	rows := make([]VectorEntry, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %s has no vector", e.ID)
		}
		if checkDims && len(e.Vector) != EmbeddingDimensions {
			return fmt.Errorf("entry %s has %d dimensions, want %d", e.ID, len(e.Vector), EmbeddingDimensions)
		}
		rows[i] = VectorEntry{
			ID:        e.ID,
			Partition: partition,
			Content:   e.Content,
			Embedding: pgvector.NewVector(e.Vector),
			Metadata:  datatypes.JSONMap(e.Metadata),
		}
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&VectorPartition{Name: partition, Metadata: datatypes.JSONMap{"space": "cosine"}}).Error
		if err != nil {
			return fmt.Errorf("create partition: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"partition_name", "content", "embedding", "metadata"}),
		}).CreateInBatches(rows, 100).Error
		if err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
		return nil
	})
}

type vectorHit struct {
	ID       string
	Content  string
	Metadata datatypes.JSONMap
	Distance float64
}

// Query implements Index.
func (p *PgvectorIndex) Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error) {
	db := p.db.WithContext(ctx)

	var part VectorPartition
	err := db.Where("name = ?", partition).Take(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPartitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find partition: %w", err)
	}

	if p.db.Dialector.Name() != "postgres" {
		return p.scan(db, partition, vector, k)
	}

	var hits []vectorHit
	err = db.Raw(`SELECT id, content, metadata, embedding <=> ? AS distance
		FROM vector_entries
		WHERE partition_name = ?
		ORDER BY distance, id
		LIMIT ?`, pgvector.NewVector(vector), partition, k).
		Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{
			ID:       h.ID,
			Content:  h.Content,
			Score:    1 - h.Distance,
			Metadata: map[string]any(h.Metadata),
		}
	}
	return matches, nil
}

// scan ranks every vector of partition by cosine similarity without pgvector.
func (p *PgvectorIndex) scan(db *gorm.DB, partition string, vector []float32, k int) ([]Match, error) {
	var rows []VectorEntry
	if err := db.Where("partition_name = ?", partition).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		emb := r.Embedding.Slice()
		if len(emb) != len(vector) {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Content:  r.Content,
			Score:    cosineSimilarity(vector, emb),
			Metadata: map[string]any(r.Metadata),
		})
	}
	return rank(matches, k), nil
}

// DeletePartition removes a partition and all its vectors.
func (p *PgvectorIndex) DeletePartition(ctx context.Context, partition string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("partition_name = ?", partition).Delete(&VectorEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", partition).Delete(&VectorPartition{}).Error
	})
}
