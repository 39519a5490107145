package repository

import (
	"context"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/jmoiron/sqlx"
)

// maxErrorLength bounds last_error so one noisy broker error cannot bloat the row
const maxErrorLength = 1000

func appendEvents(ctx context.Context, tx *sqlx.Tx, events []domain.Event) error {
	query := `
		INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, e := range events {
		// lib/pq sends []byte as bytea; jsonb needs the text form
		if _, err := tx.ExecContext(ctx, query,
			e.ID, e.Type, e.AggregateType, e.AggregateID, string(e.Payload), e.OccurredAt,
		); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// OutboxRepository reads committed events for the relay
type OutboxRepository struct {
	db *database.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *database.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ProcessPending locks up to limit pending events, oldest first, and hands
// each to fn. Events fn accepts are marked published; the others keep their
// place and count an attempt, becoming failed after maxAttempts. Rows locked
// by another relay are skipped.
func (r *OutboxRepository) ProcessPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, domain.Event) error) (int, error) {
	processed := 0

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var events []domain.Event
		query := `
			SELECT id, event_type, aggregate_type, aggregate_id, payload, occurred_at
			FROM outbox_events
			WHERE status = 'pending'
			ORDER BY occurred_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`
		if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
			return err
		}

		for _, e := range events {
			if pubErr := fn(ctx, e); pubErr != nil {
				msg := pubErr.Error()
				if len(msg) > maxErrorLength {
					msg = msg[:maxErrorLength]
				}
				failed := `
					UPDATE outbox_events SET
						attempts = attempts + 1,
						last_error = $2,
						status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
					WHERE id = $1
				`
				if _, err := tx.ExecContext(ctx, failed, e.ID, msg, maxAttempts); err != nil {
					return err
				}
				continue
			}

			published := `UPDATE outbox_events SET status = 'published', published_at = $2 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, published, e.ID, time.Now().UTC()); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return processed, nil
}

// CountPending returns the number of events still waiting to be published
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'`)
	return n, mapError(err)
}
