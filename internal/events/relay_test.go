package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/safar/stock-ledger/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msgs ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.msgs...)
}

func enqueueStockMoved(t *testing.T, db *sqlx.DB, productID int64, n int) {
	t.Helper()

	err := database.WithTransaction(context.Background(), db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		for i := 0; i < n; i++ {
			payload := StockMovedFrom(models.StockMovement{
				ID: int64(i + 1), ProductID: productID, Quantity: 1, Type: models.MovementPurchase,
				PreviousStock: i, NewStock: i + 1,
			}, false)
			if err := Enqueue(context.Background(), tx, DefaultStockTopic, Key(productID), TypeStockMoved, payload, time.Now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRelayFlushPublishesAndMarks(t *testing.T) {
	db := pgtest.Fresh(t, testDB)
	enqueueStockMoved(t, db, 42, 3)

	pub := &recordingPublisher{}
	relay := NewRelay(db, pub, zaptest.NewLogger(t), time.Second, 2)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs := pub.published()
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, DefaultStockTopic, msg.Topic)
		assert.Equal(t, "42", msg.Key)
		assert.Equal(t, TypeStockMoved, msg.Headers[HeaderEventType])
		assert.NotEmpty(t, msg.Headers[HeaderEventID])

		var payload StockMoved
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
		assert.Equal(t, i+1, payload.NewStock)
	}

	var pending int
	require.NoError(t, db.Get(&pending, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`))
	assert.Equal(t, 0, pending)
}

func TestRelayKeepsEventsWhenPublishFails(t *testing.T) {
	db := pgtest.Fresh(t, testDB)
	enqueueStockMoved(t, db, 7, 2)

	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	relay := NewRelay(db, pub, zaptest.NewLogger(t), time.Second, 10)

	_, err := relay.Flush(context.Background())
	require.Error(t, err)

	var pending int
	require.NoError(t, db.Get(&pending, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`))
	assert.Equal(t, 2, pending)

	pub.err = nil
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayRunDrainsUntilCancelled(t *testing.T) {
	db := pgtest.Fresh(t, testDB)
	enqueueStockMoved(t, db, 9, 5)

	pub := &recordingPublisher{}
	relay := NewRelay(db, pub, zaptest.NewLogger(t), 20*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(pub.published()) == 5 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestOrderPlacedFrom(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := OrderPlacedFrom(models.Order{
		ID: 3, OrderNumber: "ORD-3", UserID: 5, OrderDate: at,
		TotalAmount: decimal.RequireFromString("30.00"),
		Items: []models.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
		},
	})

	assert.Equal(t, int64(3), event.OrderID)
	assert.Equal(t, at, event.OccurredAt)
	require.Len(t, event.Items, 2)
	assert.Equal(t, 2, event.Items[0].Quantity)
}

func TestToKafkaMessage(t *testing.T) {
	msg := toKafkaMessage(Message{
		Topic:   DefaultOrderTopic,
		Key:     "12",
		Value:   []byte(`{"order_id":12}`),
		Headers: map[string]string{HeaderEventType: TypeOrderPlaced},
	})

	assert.Equal(t, DefaultOrderTopic, msg.Topic)
	assert.Equal(t, []byte("12"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, HeaderEventType, msg.Headers[0].Key)
	assert.Equal(t, []byte(TypeOrderPlaced), msg.Headers[0].Value)
}
