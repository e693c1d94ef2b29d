package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lewisedginton/organizer/internal/persistence/sqlc"
	"github.com/lewisedginton/organizer/internal/retrieval"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// MemoryRepository is the pgvector-backed memory store.
type MemoryRepository struct {
	queries *sqlc.Queries
	logger  logger.Logger
}

// NewMemoryRepository creates a memory repository over db.
func NewMemoryRepository(db sqlc.DBTX, logger logger.Logger) *MemoryRepository {
	return &MemoryRepository{queries: sqlc.New(db), logger: logger}
}

// Search returns the owner's k nearest memories by cosine similarity,
// dropping those below minSimilarity.
func (r *MemoryRepository) Search(ctx context.Context, owner string, vector []float64, k int, minSimilarity float64) ([]retrieval.Snippet, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := r.queries.SearchMemories(ctx, sqlc.SearchMemoriesParams{
		UserEmail:     owner,
		Embedding:     VectorLiteral(vector),
		MinSimilarity: minSimilarity,
		Limit:         int32(k),
	})
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	snippets := make([]retrieval.Snippet, 0, len(rows))
	for _, row := range rows {
		snippets = append(snippets, retrieval.Snippet{Content: row.Content, Similarity: row.Similarity})
	}
	return snippets, nil
}

// Insert writes one memory.
func (r *MemoryRepository) Insert(ctx context.Context, snippet retrieval.MemorySnippet) error {
	createdAt := snippet.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := r.queries.InsertMemory(ctx, sqlc.InsertMemoryParams{
		UserEmail: snippet.Owner,
		Content:   snippet.Content,
		Embedding: VectorLiteral(snippet.Embedding),
		CreatedAt: pgtype.Timestamptz{Time: createdAt, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	r.logger.Debug("Stored memory", logger.OwnerField(snippet.Owner))
	return nil
}

// VectorLiteral renders v in pgvector's text format, e.g. [0.1,0.2].
func VectorLiteral(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
