// Package usage records completed exchanges and the tokens they consumed.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"acm-chatbot/backend/internal/identity"
	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/internal/session"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

// EstimateTokens approximates a token count as the number of
// whitespace-separated fields. It is the only place the approximation lives.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// Exchange is one successful question and answer.
type Exchange struct {
	Tenant    identity.TenantContext
	SessionID string
	Endpoint  string
	Query     string
	Prompt    string
	Reply     string
}

// Receipt reports what Record stored.
type Receipt struct {
	TokensIn           int
	TokensOut          int
	UserMessageID      uint
	AssistantMessageID uint
	UsageLogID         string
}

// Accountant persists exchanges: the user message, the assistant message and
// one usage log, all in a single transaction.
type Accountant struct {
	db        *gorm.DB
	sessions  *session.Store
	log       *logger.Logger
	exchanges metric.Int64Counter
	tokensIn  metric.Int64Counter
	tokensOut metric.Int64Counter
}

// NewAccountant creates an Accountant. meter may be nil.
func NewAccountant(db *gorm.DB, sessions *session.Store, meter metric.Meter, log *logger.Logger) (*Accountant, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("usage")
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	a := &Accountant{db: db, sessions: sessions, log: log}
	var err error
	if a.exchanges, err = meter.Int64Counter("chat_exchanges_total",
		metric.WithDescription("Completed chat exchanges")); err != nil {
		return nil, err
	}
	if a.tokensIn, err = meter.Int64Counter("chat_tokens_in_total",
		metric.WithDescription("Estimated prompt tokens")); err != nil {
		return nil, err
	}
	if a.tokensOut, err = meter.Int64Counter("chat_tokens_out_total",
		metric.WithDescription("Estimated reply tokens")); err != nil {
		return nil, err
	}
	return a, nil
}

// Record stores the exchange. Nothing is written if any insert fails.
func (a *Accountant) Record(ctx context.Context, ex Exchange) (*Receipt, error) {
	receipt := &Receipt{
		TokensIn:  EstimateTokens(ex.Prompt),
		TokensOut: EstimateTokens(ex.Reply),
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := a.sessions.WithTx(tx)

		userMsg, err := store.Append(ctx, ex.SessionID, models.RoleUser, ex.Query, receipt.TokensIn)
		if err != nil {
			return err
		}
		assistantMsg, err := store.Append(ctx, ex.SessionID, models.RoleAssistant, ex.Reply, receipt.TokensOut)
		if err != nil {
			return err
		}

		entry := &models.UsageLog{
			ClientID:  ex.Tenant.ClientID,
			APIKeyID:  ex.Tenant.APIKeyID,
			Endpoint:  ex.Endpoint,
			TokensIn:  receipt.TokensIn,
			TokensOut: receipt.TokensOut,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("insert usage log: %w: %v", apperrors.ErrPersistence, err)
		}

		receipt.UserMessageID = userMsg.ID
		receipt.AssistantMessageID = assistantMsg.ID
		receipt.UsageLogID = entry.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record exchange: %w", err)
	}

	attrs := metric.WithAttributes(
		attribute.String("client_id", ex.Tenant.ClientID),
		attribute.String("endpoint", ex.Endpoint),
	)
	a.exchanges.Add(ctx, 1, attrs)
	a.tokensIn.Add(ctx, int64(receipt.TokensIn), attrs)
	a.tokensOut.Add(ctx, int64(receipt.TokensOut), attrs)

	a.log.WithTenant(ex.Tenant.ClientID, ex.Tenant.APIKeyID).Info("Exchange recorded",
		"session_id", ex.SessionID,
		"endpoint", ex.Endpoint,
		"tokens_in", receipt.TokensIn,
		"tokens_out", receipt.TokensOut,
	)
	return receipt, nil
}

// Summary aggregates a client's usage.
type Summary struct {
	ClientID  string    `json:"client_id"`
	Since     time.Time `json:"since"`
	Requests  int64     `json:"requests"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
}

// Summarize totals the client's usage logs created at or after since.
func (a *Accountant) Summarize(ctx context.Context, clientID string, since time.Time) (*Summary, error) {
	var row struct {
		Requests  int64
		TokensIn  int64
		TokensOut int64
	}
	err := a.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(tokens_in), 0) AS tokens_in, COALESCE(SUM(tokens_out), 0) AS tokens_out").
		Where("client_id = ? AND created_at >= ?", clientID, since).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w: %v", apperrors.ErrPersistence, err)
	}

	return &Summary{
		ClientID:  clientID,
		Since:     since,
		Requests:  row.Requests,
		TokensIn:  row.TokensIn,
		TokensOut: row.TokensOut,
	}, nil
}
