package sqlc

import (
	"context"
)

type Querier interface {
	ClaimAlert(ctx context.Context, arg ClaimAlertParams) (int64, error)
	GetChatHistory(ctx context.Context, userEmail string) (OrganizerChatHistory, error)
	InsertMemory(ctx context.Context, arg InsertMemoryParams) error
	SearchMemories(ctx context.Context, arg SearchMemoriesParams) ([]SearchMemoriesRow, error)
	UpsertChatHistory(ctx context.Context, arg UpsertChatHistoryParams) error
}

var _ Querier = (*Queries)(nil)
