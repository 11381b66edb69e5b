// Package session owns conversation sessions and their message history.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"acm-chatbot/backend/internal/models"
	apperrors "acm-chatbot/backend/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxResolveAttempts bounds the read/insert loop in ResolveOrCreate.
const maxResolveAttempts = 3

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var (
	// ErrInvalidSession is returned for an empty external session id.
	ErrInvalidSession = fmt.Errorf("session id is required: %w", apperrors.ErrInvalidInput)
	// ErrInvalidRole is returned when appending a message with an unknown role.
	ErrInvalidRole = fmt.Errorf("message role must be user or assistant: %w", apperrors.ErrInvalidInput)
)

// Turn is one message of a conversation as seen by prompt assembly.
type Turn struct {
	Role    string
	Content string
}

// Store persists sessions and messages with gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a session store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx so appends join the caller's transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// ResolveOrCreate returns the internal id of the session that (clientID,
// externalID) names, creating it if absent. Concurrent first requests for the
// same pair converge on one session.
func (s *Store) ResolveOrCreate(ctx context.Context, clientID, externalID string) (string, error) {
	if strings.TrimSpace(externalID) == "" {
		return "", ErrInvalidSession
	}

	db := s.db.WithContext(ctx)
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		var existing models.ChatSession
		err := db.Where("client_id = ? AND user_identifier = ?", clientID, externalID).
			Take(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("find session: %w: %v", apperrors.ErrPersistence, err)
		}

		created := models.ChatSession{ClientID: clientID, UserIdentifier: externalID}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&created)
		switch {
		case res.Error == nil && res.RowsAffected == 1:
			return created.ID, nil
		case res.Error == nil, isUniqueViolation(res.Error):
			// Another request created it first; read it back.
			lastErr = res.Error
			continue
		default:
			return "", fmt.Errorf("create session: %w: %v", apperrors.ErrPersistence, res.Error)
		}
	}

	return "", fmt.Errorf("resolve session after %d attempts: %w: %v", maxResolveAttempts, apperrors.ErrPersistence, lastErr)
}

// History returns up to limit most recent messages of the session, oldest first.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w: %v", apperrors.ErrPersistence, err)
	}

	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = Turn{Role: row.Role, Content: row.Content}
	}
	return turns, nil
}

// Append stores one message. Messages are never updated.
func (s *Store) Append(ctx context.Context, sessionID, role, content string, tokens int) (*models.ChatMessage, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, ErrInvalidRole
	}

	msg := &models.ChatMessage{
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		TokenCount: tokens,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w: %v", apperrors.ErrPersistence, err)
	}
	return msg, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
