package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is a piece of tenant knowledge before chunking.
type Document struct {
	ID        string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	ClientID  string            `json:"client_id" gorm:"type:varchar(36);not null;index"`
	Title     string            `json:"title" gorm:"size:255;not null"`
	Source    string            `json:"source,omitempty" gorm:"size:512"`
	Content   string            `json:"content,omitempty" gorm:"type:text"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Document) TableName() string { return "documents" }

// BeforeCreate assigns a UUID when none was set.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DocumentChunk is a slice of a document. Its vector is stored in the tenant's
// partition under the same ID.
type DocumentChunk struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:varchar(36);not null;index"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (DocumentChunk) TableName() string { return "document_chunks" }

// BeforeCreate assigns a UUID when none was set.
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
