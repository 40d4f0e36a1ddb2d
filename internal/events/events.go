// Package events records domain events in the transactional outbox and
// relays them to Kafka once the producing transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/safar/stock-ledger/internal/store"
	"github.com/shopspring/decimal"
)

const (
	TypeStockMoved  = "StockMoved"
	TypeOrderPlaced = "OrderPlaced"
)

const (
	DefaultStockTopic = "inventory.stock-moved"
	DefaultOrderTopic = "orders.order-placed"
)

type StockMoved struct {
	MovementID    int64               `json:"movement_id"`
	ProductID     int64               `json:"product_id"`
	Type          models.MovementType `json:"type"`
	Quantity      int                 `json:"quantity"`
	Reason        string              `json:"reason,omitempty"`
	ActorID       int64               `json:"actor_id"`
	PreviousStock int                 `json:"previous_stock"`
	NewStock      int                 `json:"new_stock"`
	BelowMinimum  bool                `json:"below_minimum"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

type OrderPlaced struct {
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      int64             `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Items       []OrderPlacedItem `json:"items"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Enqueue writes an event to the outbox inside tx. It becomes visible to the
// relay only if tx commits.
func Enqueue(ctx context.Context, tx *sqlx.Tx, topic, key, eventType string, payload any, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return store.InsertOutboxEvent(ctx, tx, &models.OutboxEvent{
		EventID:   uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Type:      eventType,
		Payload:   data,
		CreatedAt: at,
	})
}

func StockMovedFrom(m models.StockMovement, belowMinimum bool) StockMoved {
	return StockMoved{
		MovementID:    m.ID,
		ProductID:     m.ProductID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		Reason:        m.Reason,
		ActorID:       m.ActorID,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		BelowMinimum:  belowMinimum,
		OccurredAt:    m.CreatedAt,
	}
}

func OrderPlacedFrom(o models.Order) OrderPlaced {
	items := make([]OrderPlacedItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderPlacedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return OrderPlaced{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       items,
		OccurredAt:  o.OrderDate,
	}
}

// Key formats an entity id as a partition key so all events of one product
// or order land on the same partition.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}
