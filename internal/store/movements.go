package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/models"
)

const movementColumns = `id, product_id, quantity, type, reason, actor_id,
	previous_stock, new_stock, created_at`

// InsertMovement appends m to the ledger and fills in its id. There is no
// update or delete counterpart; the schema rejects both.
func InsertMovement(ctx context.Context, tx *sqlx.Tx, m *models.StockMovement) error {
	if m.Quantity <= 0 {
		return fmt.Errorf("insert movement: quantity must be positive, got %d", m.Quantity)
	}

	err := tx.QueryRowxContext(ctx,
		`INSERT INTO stock_movements (product_id, quantity, type, reason, actor_id,
		                              previous_stock, new_stock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		m.ProductID, m.Quantity, m.Type, m.Reason, m.ActorID,
		m.PreviousStock, m.NewStock, m.CreatedAt).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

func ListMovements(ctx context.Context, q sqlx.QueryerContext, productID int64, cursor string, limit int) (*CursorPage[models.StockMovement], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	_, limit = ClampPage(1, limit, MaxPageSize)

	query := `
		SELECT ` + movementColumns + `
		FROM stock_movements
		WHERE product_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	var movements []models.StockMovement
	if err := sqlx.SelectContext(ctx, q, &movements, query, productID, cursorData.CreatedAt, cursorData.ID, limit+1); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	hasMore := len(movements) > limit
	if hasMore {
		movements = movements[:limit]
	}

	var nextCursor string
	if hasMore && len(movements) > 0 {
		last := movements[len(movements)-1]
		nextCursor = EncodeCursor(Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage[models.StockMovement]{
		Items:      movements,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// LedgerBalance recomputes a product's stock from its movements alone.
func LedgerBalance(ctx context.Context, q sqlx.QueryerContext, productID int64) (int, error) {
	var balance int

	err := sqlx.GetContext(ctx, q, &balance,
		`SELECT COALESCE(SUM(CASE type WHEN 'Sale' THEN -quantity ELSE quantity END), 0)
		 FROM stock_movements
		 WHERE product_id = $1`,
		productID)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}

	return balance, nil
}
