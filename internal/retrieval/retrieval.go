// Package retrieval implements best-effort semantic memory: embedding the
// current utterance, finding similar past snippets and writing new ones.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lewisedginton/organizer/pkg/logger"
)

const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.5
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Snippet is one memory returned by a search.
type Snippet struct {
	Content    string
	Similarity float64
}

// MemorySnippet is a write-once memory record.
type MemorySnippet struct {
	Owner     string
	Content   string
	Embedding []float64
	CreatedAt time.Time
}

// Store is the owner-scoped vector store.
type Store interface {
	Search(ctx context.Context, owner string, vector []float64, k int, minSimilarity float64) ([]Snippet, error)
	Insert(ctx context.Context, snippet MemorySnippet) error
}

// Config holds the Retriever's collaborators and bounds.
type Config struct {
	Embedder      Embedder
	Store         Store
	Logger        logger.Logger
	TopK          int
	MinSimilarity float64
	Now           func() time.Time
}

// Retriever reads and writes semantic memory. It never returns errors to the turn.
type Retriever struct {
	embedder Embedder
	store    Store
	log      logger.Logger
	topK     int
	minSim   float64
	now      func() time.Time
}

// New creates a Retriever. Bounds outside the defaults are clamped to them.
func New(cfg Config) (*Retriever, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("memory store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	// TopK may only narrow and MinSimilarity may only tighten the defaults.
	if cfg.TopK <= 0 || cfg.TopK > DefaultTopK {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinSimilarity < DefaultMinSimilarity {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Retriever{
		embedder: cfg.Embedder,
		store:    cfg.Store,
		log:      cfg.Logger,
		topK:     cfg.TopK,
		minSim:   cfg.MinSimilarity,
		now:      cfg.Now,
	}, nil
}

// Retrieve returns at most TopK snippets with similarity at or above
// MinSimilarity, best first. Any failure yields no snippets.
func (r *Retriever) Retrieve(ctx context.Context, owner, query string) []Snippet {
	if owner == "" || strings.TrimSpace(query) == "" {
		return nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Warn("Failed to embed query for memory retrieval", logger.OwnerField(owner), logger.ErrorField(err))
		return nil
	}

	found, err := r.store.Search(ctx, owner, vec, r.topK, r.minSim)
	if err != nil {
		r.log.Warn("Memory search failed", logger.OwnerField(owner), logger.ErrorField(err))
		return nil
	}

	kept := make([]Snippet, 0, len(found))
	for _, s := range found {
		if s.Similarity >= r.minSim && strings.TrimSpace(s.Content) != "" {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if len(kept) > r.topK {
		kept = kept[:r.topK]
	}
	return kept
}

// Remember embeds content and stores it as a new snippet. Failures are logged.
func (r *Retriever) Remember(ctx context.Context, owner, content string) {
	if owner == "" || strings.TrimSpace(content) == "" {
		return
	}
	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		r.log.Warn("Failed to embed memory snippet", logger.OwnerField(owner), logger.ErrorField(err))
		return
	}
	err = r.store.Insert(ctx, MemorySnippet{
		Owner:     owner,
		Content:   content,
		Embedding: vec,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.log.Warn("Failed to store memory snippet", logger.OwnerField(owner), logger.ErrorField(err))
		return
	}
	r.log.Debug("Memory snippet stored", logger.OwnerField(owner))
}

// Context renders snippets as bullet lines for the system prompt.
func Context(snippets []Snippet) string {
	lines := make([]string, len(snippets))
	for i, s := range snippets {
		lines[i] = "- " + s.Content
	}
	return strings.Join(lines, "\n")
}
