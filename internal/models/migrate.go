package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All returns every relational model in dependency order.
func All() []any {
	return []any{
		&Client{},
		&APIKey{},
		&User{},
		&UserClient{},
		&ChatSession{},
		&ChatMessage{},
		&UsageLog{},
		&Document{},
		&DocumentChunk{},
	}
}

// Migrate creates or updates the relational schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
