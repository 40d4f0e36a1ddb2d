package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/store"
	"go.uber.org/zap"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// Relay moves committed outbox events to the publisher. Claimed rows stay
// locked while they are published, so several relays can run side by side;
// a failed publish rolls the claim back and the rows are retried later.
type Relay struct {
	db        *sqlx.DB
	publisher Publisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewRelay(db *sqlx.DB, publisher Publisher, logger *zap.Logger, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Relay{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is done. Each tick drains the outbox batch by batch.
func (r *Relay) Run(ctx context.Context) {
	pending, err := store.CountPendingOutbox(ctx, r.db)
	if err != nil {
		r.logger.Warn("Failed to count pending outbox events", zap.Error(err))
	}

	r.logger.Info("Starting outbox relay",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
		zap.Int("pending", pending))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return
		case <-ticker.C:
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Error("Failed to relay outbox events", zap.Error(err))
					}
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// Flush publishes one batch and returns how many events it relayed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	relayed := 0

	err := database.WithTransaction(ctx, r.db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		pending, err := store.ClaimOutboxEvents(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		msgs := make([]Message, len(pending))
		ids := make([]int64, len(pending))
		for i, e := range pending {
			ids[i] = e.ID
			msgs[i] = Message{
				Topic: e.Topic,
				Key:   e.Key,
				Value: e.Payload,
				Headers: map[string]string{
					HeaderEventID:   e.EventID,
					HeaderEventType: e.Type,
				},
			}
		}

		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %d events: %w", len(msgs), err)
		}

		if err := store.MarkOutboxPublished(ctx, tx, ids, r.now()); err != nil {
			return err
		}

		relayed = len(pending)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if relayed > 0 {
		r.logger.Debug("Relayed outbox events", zap.Int("count", relayed))
	}

	return relayed, nil
}
