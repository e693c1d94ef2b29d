package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getChatHistory = `-- name: GetChatHistory :one
SELECT user_email, messages, updated_at FROM organizer_chat_history WHERE user_email = $1
`

func (q *Queries) GetChatHistory(ctx context.Context, userEmail string) (OrganizerChatHistory, error) {
	row := q.db.QueryRow(ctx, getChatHistory, userEmail)
	var i OrganizerChatHistory
	err := row.Scan(&i.UserEmail, &i.Messages, &i.UpdatedAt)
	return i, err
}

const upsertChatHistory = `-- name: UpsertChatHistory :exec
INSERT INTO organizer_chat_history (user_email, messages, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_email) DO UPDATE
SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
`

type UpsertChatHistoryParams struct {
	UserEmail string             `json:"user_email"`
	Messages  []byte             `json:"messages"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

func (q *Queries) UpsertChatHistory(ctx context.Context, arg UpsertChatHistoryParams) error {
	_, err := q.db.Exec(ctx, upsertChatHistory, arg.UserEmail, arg.Messages, arg.UpdatedAt)
	return err
}

const searchMemories = `-- name: SearchMemories :many
SELECT content, (1 - (embedding <=> $2::vector))::float8 AS similarity
FROM user_memories
WHERE user_email = $1
  AND 1 - (embedding <=> $2::vector) >= $3
ORDER BY embedding <=> $2::vector
LIMIT $4
`

type SearchMemoriesParams struct {
	UserEmail     string  `json:"user_email"`
	Embedding     string  `json:"embedding"`
	MinSimilarity float64 `json:"min_similarity"`
	Limit         int32   `json:"limit"`
}

type SearchMemoriesRow struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

func (q *Queries) SearchMemories(ctx context.Context, arg SearchMemoriesParams) ([]SearchMemoriesRow, error) {
	rows, err := q.db.Query(ctx, searchMemories, arg.UserEmail, arg.Embedding, arg.MinSimilarity, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SearchMemoriesRow
	for rows.Next() {
		var i SearchMemoriesRow
		if err := rows.Scan(&i.Content, &i.Similarity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertMemory = `-- name: InsertMemory :exec
INSERT INTO user_memories (user_email, content, embedding, created_at)
VALUES ($1, $2, $3::vector, $4)
`

type InsertMemoryParams struct {
	UserEmail string             `json:"user_email"`
	Content   string             `json:"content"`
	Embedding string             `json:"embedding"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) InsertMemory(ctx context.Context, arg InsertMemoryParams) error {
	_, err := q.db.Exec(ctx, insertMemory, arg.UserEmail, arg.Content, arg.Embedding, arg.CreatedAt)
	return err
}

const claimAlert = `-- name: ClaimAlert :one
INSERT INTO proactive_alerts (user_email, event_id, alert_type)
VALUES ($1, $2, $3)
ON CONFLICT (user_email, event_id) DO NOTHING
RETURNING id
`

type ClaimAlertParams struct {
	UserEmail string `json:"user_email"`
	EventID   string `json:"event_id"`
	AlertType string `json:"alert_type"`
}

func (q *Queries) ClaimAlert(ctx context.Context, arg ClaimAlertParams) (int64, error) {
	row := q.db.QueryRow(ctx, claimAlert, arg.UserEmail, arg.EventID, arg.AlertType)
	var id int64
	err := row.Scan(&id)
	return id, err
}
