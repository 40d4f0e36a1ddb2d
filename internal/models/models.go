package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column limits: stock_quantity and movement quantity are INTEGER, order
// totals are NUMERIC(14,2).
const MaxStock = math.MaxInt32

var MaxOrderTotal = decimal.RequireFromString("999999999999.99")

type Product struct {
	ID                int64           `db:"id" json:"id"`
	SKU               string          `db:"sku" json:"sku"`
	Name              string          `db:"name" json:"name"`
	Category          string          `db:"category" json:"category,omitempty"`
	Description       string          `db:"description" json:"description,omitempty"`
	Price             decimal.Decimal `db:"price" json:"price"`
	StockQuantity     int             `db:"stock_quantity" json:"stock_quantity"`
	MinimumStockLevel int             `db:"minimum_stock_level" json:"minimum_stock_level"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Version           int             `db:"version" json:"version"`
}

// BelowMinimum reports whether the cached stock sits under the advisory
// threshold. Nothing enforces it.
func (p Product) BelowMinimum() bool {
	return p.MinimumStockLevel > 0 && p.StockQuantity < p.MinimumStockLevel
}

type MovementType string

const (
	MovementPurchase   MovementType = "Purchase"
	MovementSale       MovementType = "Sale"
	MovementAdjustment MovementType = "Adjustment"
)

func ParseMovementType(s string) (MovementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "purchase":
		return MovementPurchase, nil
	case "sale":
		return MovementSale, nil
	case "adjustment":
		return MovementAdjustment, nil
	}
	return "", fmt.Errorf("unrecognized movement type %q", s)
}

// SignedDelta turns a positive movement quantity into the change it applies
// to stock. Adjustment is additive: corrections only ever add stock.
func (t MovementType) SignedDelta(quantity int) int {
	switch t {
	case MovementSale:
		return -quantity
	default:
		return quantity
	}
}

type StockMovement struct {
	ID            int64        `db:"id" json:"id"`
	ProductID     int64        `db:"product_id" json:"product_id"`
	Quantity      int          `db:"quantity" json:"quantity"`
	Type          MovementType `db:"type" json:"type"`
	Reason        string       `db:"reason" json:"reason,omitempty"`
	ActorID       int64        `db:"actor_id" json:"actor_id"`
	PreviousStock int          `db:"previous_stock" json:"previous_stock"`
	NewStock      int          `db:"new_stock" json:"new_stock"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

func (m StockMovement) SignedDelta() int {
	return m.Type.SignedDelta(m.Quantity)
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

type Order struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"user_id"`
	OrderNumber string          `db:"order_number" json:"order_number"`
	Status      OrderStatus     `db:"status" json:"status"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	OrderDate   time.Time       `db:"order_date" json:"order_date"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Version     int             `db:"version" json:"version"`
	Items       []OrderItem     `db:"-" json:"items,omitempty"`
}

// OrderItem references its order and product by id only. ProductName is
// filled by lookup when the item is read back.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name,omitempty"`
	LineNo      int             `db:"line_no" json:"line_no"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

func (i OrderItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// OutboxEvent is a domain event recorded in the same transaction as the state
// change it describes, waiting to be relayed to the broker.
type OutboxEvent struct {
	ID          int64      `db:"id" json:"id"`
	EventID     string     `db:"event_id" json:"event_id"`
	Topic       string     `db:"topic" json:"topic"`
	Key         string     `db:"event_key" json:"key"`
	Type        string     `db:"event_type" json:"type"`
	Payload     []byte     `db:"payload" json:"payload"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
}
