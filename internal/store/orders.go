package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/models"
)

const orderColumns = `id, user_id, order_number, status, total_amount, order_date,
	created_at, updated_at, version`

func GenerateOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

// InsertOrder writes the order header and fills in its id and bookkeeping
// columns. Items are written separately with InsertOrderItem.
func InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	if order.OrderNumber == "" {
		order.OrderNumber = GenerateOrderNumber()
	}

	err := tx.QueryRowxContext(ctx,
		`INSERT INTO orders (user_id, order_number, status, total_amount, order_date, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $5, $5, 1)
		 RETURNING id, created_at, updated_at, version`,
		order.UserID, order.OrderNumber, order.Status, order.TotalAmount, order.OrderDate).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO order_items (order_id, product_id, line_no, quantity, unit_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		item.OrderID, item.ProductID, item.LineNo, item.Quantity, item.UnitPrice, item.CreatedAt).Scan(
		&item.ID,
		&item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

func GetOrder(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := sqlx.GetContext(ctx, q, order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := orderItems(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return order, nil
}

// ListOrders returns one page of a user's orders, newest first, with their
// items attached.
func ListOrders(ctx context.Context, q sqlx.QueryerContext, userID int64, page, pageSize int) (*OffsetPage[models.Order], error) {
	var total int64
	err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY order_date DESC, id DESC
		LIMIT $2 OFFSET $3`

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, q, &orders, query, userID, pageSize, offset); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	if len(orders) > 0 {
		ids := make([]int64, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}

		items, err := orderItems(ctx, q, ids)
		if err != nil {
			return nil, err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
	}

	return &OffsetPage[models.Order]{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// orderItems loads the items of the given orders keyed by order id, in the
// order they were placed. Product names are resolved by join.
func orderItems(ctx context.Context, q sqlx.QueryerContext, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name AS product_name, oi.line_no,
		       oi.quantity, oi.unit_price, oi.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.line_no`

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, q, &items, query, pq.Array(orderIDs)); err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}

	return byOrder, nil
}
