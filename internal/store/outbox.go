package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/stock-ledger/internal/models"
)

const outboxColumns = `id, event_id, topic, event_key, event_type, payload, created_at, published_at`

func InsertOutboxEvent(ctx context.Context, tx *sqlx.Tx, e *models.OutboxEvent) error {
	// lib/pq sends []byte as bytea, so the JSON goes over the wire as text.
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO outbox_events (event_id, topic, event_key, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 RETURNING id`,
		e.EventID, e.Topic, e.Key, e.Type, string(e.Payload), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// ClaimOutboxEvents locks up to limit unpublished events, oldest first.
// Rows already claimed by another relay are skipped rather than waited on.
func ClaimOutboxEvents(ctx context.Context, tx *sqlx.Tx, limit int) ([]models.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	var events []models.OutboxEvent
	if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}

	return events, nil
}

func MarkOutboxPublished(ctx context.Context, tx *sqlx.Tx, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $1 WHERE id = ANY($2)`,
		at, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}

	return nil
}

func CountPendingOutbox(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}
