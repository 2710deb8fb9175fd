package repository

import (
	"context"
	"errors"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
)

var ErrEventAlreadyExists = errors.New("webhook event already exists")

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Admit inserts the dedup record for an event id. The primary key makes the
// check-then-insert atomic: exactly one concurrent caller succeeds, the rest
// get ErrEventAlreadyExists.
func (r *WebhookEventRepository) Admit(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			event_id, event_type, account, payload_digest, status, received_at, processed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.EventType,
		event.Account,
		event.PayloadDigest,
		event.Status,
		event.ReceivedAt,
		nullableTimeValue(event.ProcessedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrEventAlreadyExists
		}
		return err
	}

	return nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	query := `
		UPDATE webhook_events
		SET status = ?, processed_at = ?
		WHERE event_id = ?
	`

	_, err := r.db.ExecContext(ctx, query, entity.WebhookEventStatusProcessed, processedAt, eventID)
	return err
}

// Release drops the admission so a provider redelivery can be admitted again
// after a definitive processing failure.
func (r *WebhookEventRepository) Release(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = ?`, eventID)
	return err
}

func (r *WebhookEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	query := `
		DELETE FROM webhook_events
		WHERE received_at < ?
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
