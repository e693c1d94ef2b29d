// Package persistence stores conversation history, memories and proactive
// alert claims in Postgres.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/persistence/sqlc"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// HistoryRepository keeps one JSON array of turns per owner.
type HistoryRepository struct {
	queries *sqlc.Queries
	logger  logger.Logger
	now     func() time.Time
}

// NewHistoryRepository creates a history repository over db.
func NewHistoryRepository(db sqlc.DBTX, logger logger.Logger) *HistoryRepository {
	return &HistoryRepository{
		queries: sqlc.New(db),
		logger:  logger,
		now:     time.Now,
	}
}

// Load returns the owner's persisted turns. An owner with no row has an
// empty history.
func (r *HistoryRepository) Load(ctx context.Context, owner string) ([]conversation.Turn, error) {
	row, err := r.queries.GetChatHistory(ctx, owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat history: %w", err)
	}
	if len(row.Messages) == 0 {
		return nil, nil
	}

	var turns []conversation.Turn
	if err := json.Unmarshal(row.Messages, &turns); err != nil {
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return turns, nil
}

// Save replaces the owner's history.
func (r *HistoryRepository) Save(ctx context.Context, owner string, turns []conversation.Turn) error {
	if turns == nil {
		turns = []conversation.Turn{}
	}
	messages, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}

	err = r.queries.UpsertChatHistory(ctx, sqlc.UpsertChatHistoryParams{
		UserEmail: owner,
		Messages:  messages,
		UpdatedAt: pgtype.Timestamptz{Time: r.now(), Valid: true},
	})
	if err != nil {
		return fmt.Errorf("upsert chat history: %w", err)
	}

	r.logger.Debug("Saved chat history", logger.OwnerField(owner), logger.IntField("turns", len(turns)))
	return nil
}
