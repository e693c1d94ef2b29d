package sqlc

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type OrganizerChatHistory struct {
	UserEmail string             `json:"user_email"`
	Messages  []byte             `json:"messages"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

type UserMemory struct {
	ID        int64              `json:"id"`
	UserEmail string             `json:"user_email"`
	Content   string             `json:"content"`
	Embedding string             `json:"embedding"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type ProactiveAlert struct {
	ID         int64              `json:"id"`
	UserEmail  string             `json:"user_email"`
	EventID    string             `json:"event_id"`
	AlertType  string             `json:"alert_type"`
	NotifiedAt pgtype.Timestamptz `json:"notified_at"`
}
