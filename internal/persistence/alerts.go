package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lewisedginton/organizer/internal/persistence/sqlc"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// AlertRepository records which events an owner has been alerted about.
type AlertRepository struct {
	queries *sqlc.Queries
	logger  logger.Logger
}

// NewAlertRepository creates an alert repository over db.
func NewAlertRepository(db sqlc.DBTX, logger logger.Logger) *AlertRepository {
	return &AlertRepository{queries: sqlc.New(db), logger: logger}
}

// Claim records an alert for (owner, eventID) and reports whether this call
// created the record. Only one of any number of concurrent callers wins.
func (r *AlertRepository) Claim(ctx context.Context, owner, eventID, alertType string) (bool, error) {
	_, err := r.queries.ClaimAlert(ctx, sqlc.ClaimAlertParams{
		UserEmail: owner,
		EventID:   eventID,
		AlertType: alertType,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim alert: %w", err)
	}

	r.logger.Debug("Claimed proactive alert", logger.OwnerField(owner), logger.StringField("event_id", eventID))
	return true, nil
}
