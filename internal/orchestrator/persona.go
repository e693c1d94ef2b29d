package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lewisedginton/organizer/internal/storage"
)

// PersonaPath is where an operator-provided persona is looked up.
const PersonaPath = "prompts/persona.md"

// LoadPersona reads the persona from store, falling back to DefaultPersona
// when none has been uploaded.
func LoadPersona(ctx context.Context, store storage.BlobStore) (string, error) {
	if store == nil {
		return DefaultPersona, nil
	}
	data, err := store.Get(ctx, PersonaPath)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultPersona, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read persona: %w", err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return DefaultPersona, nil
	}
	return persona, nil
}
