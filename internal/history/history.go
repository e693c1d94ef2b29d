// Package history reconciles submitted conversation turns with the persisted
// per-owner history and maintains the persisted sliding window.
package history

import (
	"context"
	"errors"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// DefaultWindow is the number of turns kept in persisted history.
const DefaultWindow = 20

// Store persists one ordered history per owner. Load returns an empty slice
// when the owner has no history.
type Store interface {
	Load(ctx context.Context, owner string) ([]conversation.Turn, error)
	Save(ctx context.Context, owner string, turns []conversation.Turn) error
}

// Config holds the Merger's collaborators.
type Config struct {
	Store  Store
	Logger logger.Logger
	Window int
}

// Merger hydrates first turns from the store and appends finished replies to it.
type Merger struct {
	store  Store
	log    logger.Logger
	window int
}

// New creates a Merger. Window defaults to DefaultWindow.
func New(cfg Config) (*Merger, error) {
	if cfg.Store == nil {
		return nil, errors.New("history store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Merger{store: cfg.Store, log: cfg.Logger, window: cfg.Window}, nil
}

// Merge returns the turn list to feed the model. A submitted list with more
// than one turn is already hydrated and is returned as is, without touching
// the store. Load failures degrade to an empty prior history.
func (m *Merger) Merge(ctx context.Context, owner string, submitted []conversation.Turn) []conversation.Turn {
	if len(submitted) > 1 || owner == "" {
		return submitted
	}

	persisted, err := m.store.Load(ctx, owner)
	if err != nil {
		m.log.Warn("Failed to load conversation history", logger.OwnerField(owner), logger.ErrorField(err))
		return submitted
	}
	if len(persisted) == 0 {
		return submitted
	}

	merged := make([]conversation.Turn, 0, len(persisted)+len(submitted))
	merged = append(merged, Normalize(persisted)...)
	merged = append(merged, submitted...)
	return merged
}

// Append records reply as the newest assistant turn of history and persists
// the most recent window of turns. Save failures are logged only.
func (m *Merger) Append(ctx context.Context, owner string, history []conversation.Turn, reply string) []conversation.Turn {
	updated := make([]conversation.Turn, 0, len(history)+1)
	for _, t := range history {
		if t.Role == conversation.RoleTool || t.Role == conversation.RoleSystem {
			continue
		}
		updated = append(updated, t)
	}
	updated = append(updated, conversation.AssistantTurn(reply))
	updated = Window(Normalize(updated), m.window)

	if owner == "" {
		return updated
	}
	if err := m.store.Save(ctx, owner, updated); err != nil {
		m.log.Warn("Failed to save conversation history", logger.OwnerField(owner), logger.ErrorField(err))
	}
	return updated
}

// Normalize replaces assistant turns holding a JSON reply envelope with the
// envelope's text. The input slice is not modified.
func Normalize(turns []conversation.Turn) []conversation.Turn {
	out := make([]conversation.Turn, len(turns))
	for i, t := range turns {
		if t.Role == conversation.RoleAssistant {
			if text, ok := conversation.ExtractText(t.Content); ok {
				t.Content = text
			}
		}
		out[i] = t
	}
	return out
}

// Window keeps the newest n turns, dropping the oldest first.
func Window(turns []conversation.Turn, n int) []conversation.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
