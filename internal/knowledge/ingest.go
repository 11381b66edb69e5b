// Package knowledge turns tenant documents into retrievable chunks.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/retrieval"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultWorkers bounds concurrent embedding calls per document.
const DefaultWorkers = 4

var (
	// ErrClientNotFound is returned when documents are ingested for an unknown client.
	ErrClientNotFound = fmt.Errorf("client: %w", apperrors.ErrNotFound)
	// ErrInvalidDocument is returned for documents without a title.
	ErrInvalidDocument = fmt.Errorf("document title is required: %w", apperrors.ErrInvalidInput)
)

// VectorStore is the part of a vector index ingestion writes to.
type VectorStore interface {
	Upsert(ctx context.Context, partition string, entries []retrieval.Entry) error
	DeletePartition(ctx context.Context, partition string) error
}

// Config tunes an Ingester.
type Config struct {
	ChunkSize int
	Workers   int
}

// DocumentInput is a document submitted for ingestion.
type DocumentInput struct {
	Title    string         `json:"title" binding:"required"`
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Result describes one ingested document.
type Result struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
}

// Ingester chunks, embeds and stores documents in the tenant's partition.
type Ingester struct {
	db       *gorm.DB
	embedder retrieval.Embedder
	vectors  VectorStore
	cfg      Config
	log      *logger.Logger
}

// NewIngester creates an Ingester.
func NewIngester(db *gorm.DB, embedder retrieval.Embedder, vectors VectorStore, cfg Config, log *logger.Logger) *Ingester {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Ingester{db: db, embedder: embedder, vectors: vectors, cfg: cfg, log: log}
}

// Ingest stores a new document for clientID and indexes its chunks. Embedding
// happens before anything is written; if the vector write fails the
// relational rows are removed again.
func (i *Ingester) Ingest(ctx context.Context, clientID string, in DocumentInput) (*Result, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrInvalidDocument
	}
	if err := i.requireClient(ctx, clientID); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Title:    strings.TrimSpace(in.Title),
		Source:   in.Source,
		Content:  in.Content,
	}
	if len(in.Metadata) > 0 {
		doc.Metadata = datatypes.JSONMap(in.Metadata)
	}

	chunks, entries, err := i.prepare(ctx, doc)
	if err != nil {
		return nil, err
	}

	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store document: %w: %v", apperrors.ErrPersistence, err)
	}

	if err := i.index(ctx, clientID, entries); err != nil {
		i.discard(ctx, doc.ID)
		return nil, err
	}

	i.log.Info("Document ingested", "client_id", clientID, "document_id", doc.ID, "chunks", len(chunks))
	return &Result{DocumentID: doc.ID, Title: doc.Title, Chunks: len(chunks)}, nil
}

// ReprocessResult summarises a Reprocess run.
type ReprocessResult struct {
	Documents []Result `json:"documents"`
	Skipped   int      `json:"skipped"`
}

// Reprocess indexes every document of clientID that has no chunks yet. With
// clean set, existing chunks and the tenant partition are dropped first so
// every document is indexed again.
func (i *Ingester) Reprocess(ctx context.Context, clientID string, clean bool) (*ReprocessResult, error) {
	if err := i.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	db := i.db.WithContext(ctx)

	if clean {
		docIDs := db.Model(&models.Document{}).Select("id").Where("client_id = ?", clientID)
		if err := db.Where("document_id IN (?)", docIDs).Delete(&models.DocumentChunk{}).Error; err != nil {
			return nil, fmt.Errorf("clear chunks: %w: %v", apperrors.ErrPersistence, err)
		}
		if err := i.vectors.DeletePartition(ctx, retrieval.PartitionName(clientID)); err != nil {
			return nil, fmt.Errorf("%w: clear partition: %w", apperrors.ErrUpstreamUnavailable, err)
		}
		i.log.Info("Knowledge cleared for reprocessing", "client_id", clientID)
	}

	var docs []models.Document
	err := db.Where("client_id = ?", clientID).
		Where("NOT EXISTS (SELECT 1 FROM document_chunks c WHERE c.document_id = documents.id)").
		Order("created_at").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w: %v", apperrors.ErrPersistence, err)
	}

	out := &ReprocessResult{Documents: []Result{}}
	for idx := range docs {
		doc := &docs[idx]
		chunks, entries, err := i.prepare(ctx, doc)
		if err != nil {
			return out, err
		}
		if len(chunks) == 0 {
			out.Skipped++
			continue
		}
		if err := db.CreateInBatches(chunks, 100).Error; err != nil {
			return out, fmt.Errorf("store chunks: %w: %v", apperrors.ErrPersistence, err)
		}
		if err := i.index(ctx, clientID, entries); err != nil {
			db.Where("document_id = ?", doc.ID).Delete(&models.DocumentChunk{})
			return out, err
		}
		out.Documents = append(out.Documents, Result{DocumentID: doc.ID, Title: doc.Title, Chunks: len(chunks)})
	}

	i.log.Info("Knowledge reprocessed", "client_id", clientID, "documents", len(out.Documents), "skipped", out.Skipped)
	return out, nil
}

// ListDocuments returns the client's documents, newest first.
func (i *Ingester) ListDocuments(ctx context.Context, clientID string) ([]models.Document, error) {
	var docs []models.Document
	err := i.db.WithContext(ctx).
		Select("id", "client_id", "title", "source", "metadata", "created_at").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w: %v", apperrors.ErrPersistence, err)
	}
	return docs, nil
}

// prepare chunks doc and embeds every chunk with bounded concurrency.
func (i *Ingester) prepare(ctx context.Context, doc *models.Document) ([]models.DocumentChunk, []retrieval.Entry, error) {
	pieces := Chunk(bodyFor(doc.Title, doc.Source, doc.Content), i.cfg.ChunkSize)
	if len(pieces) == 0 {
		return nil, nil, nil
	}

	chunks := make([]models.DocumentChunk, len(pieces))
	entries := make([]retrieval.Entry, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Workers)
	for idx, piece := range pieces {
		idx, piece := idx, piece
		chunks[idx] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: idx,
			Content:    piece,
		}
		g.Go(func() error {
			vec, err := i.embedder.Embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", idx, err)
			}
			entries[idx] = retrieval.Entry{
				ID:      chunks[idx].ID,
				Vector:  vec,
				Content: piece,
				Metadata: map[string]any{
					"client_id":      doc.ClientID,
					"document_id":    doc.ID,
					"document_title": doc.Title,
					"chunk_index":    idx,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrUpstreamUnavailable, err)
	}
	return chunks, entries, nil
}

func (i *Ingester) index(ctx context.Context, clientID string, entries []retrieval.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := i.vectors.Upsert(ctx, retrieval.PartitionName(clientID), entries); err != nil {
		return fmt.Errorf("%w: index chunks: %w", apperrors.ErrUpstreamUnavailable, err)
	}
	return nil
}

// discard removes a document whose vectors could not be written.
func (i *Ingester) discard(ctx context.Context, documentID string) {
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", documentID).Delete(&models.Document{}).Error
	})
	if err != nil {
		i.log.LogError(err, "Failed to discard partially ingested document", "document_id", documentID)
	}
}

func (i *Ingester) requireClient(ctx context.Context, clientID string) error {
	var count int64
	if err := i.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", clientID).Count(&count).Error; err != nil {
		return fmt.Errorf("load client: %w: %v", apperrors.ErrPersistence, err)
	}
	if count == 0 {
		return ErrClientNotFound
	}
	return nil
}
