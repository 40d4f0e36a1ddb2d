package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, category, description, price, stock_quantity,
	minimum_stock_level, is_active, created_at, updated_at, version`

// OpeningStockReason labels the movement that seeds a new product's ledger.
const OpeningStockReason = "opening stock"

type NewProduct struct {
	SKU               string
	Name              string
	Category          string
	Description       string
	Price             decimal.Decimal
	Stock             int
	MinimumStockLevel int
}

// CreateProduct inserts a product and, when it starts with stock, the
// Purchase movement that accounts for it, so the ledger balances from the
// first row.
func CreateProduct(ctx context.Context, db *sqlx.DB, in NewProduct, actorID int64) (*models.Product, error) {
	if in.Stock < 0 {
		return nil, fmt.Errorf("create product: negative opening stock %d", in.Stock)
	}

	product := &models.Product{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO products (sku, name, category, description, price, stock_quantity,
			                      minimum_stock_level, is_active, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW(), 1)
			RETURNING ` + productColumns

		err := tx.GetContext(ctx, product, query,
			in.SKU, in.Name, in.Category, in.Description, in.Price, in.Stock, in.MinimumStockLevel)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}

		if in.Stock == 0 {
			return nil
		}

		return InsertMovement(ctx, tx, &models.StockMovement{
			ProductID:     product.ID,
			Quantity:      in.Stock,
			Type:          models.MovementPurchase,
			Reason:        OpeningStockReason,
			ActorID:       actorID,
			PreviousStock: 0,
			NewStock:      in.Stock,
			CreatedAt:     product.CreatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := sqlx.GetContext(ctx, q, product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProduct reads a product and holds its row lock until tx ends. Every
// stock check-and-write goes through here so concurrent writers to the same
// product queue up instead of overwriting each other.
func LockProduct(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	if err := tx.GetContext(ctx, product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product %d: %w", id, database.TranslateLockError(err))
	}

	return product, nil
}

// ApplyStockDelta changes the cached stock by delta and returns the new
// quantity. The guard in the WHERE clause refuses to go below zero even if a
// caller skipped the lock.
func ApplyStockDelta(ctx context.Context, tx *sqlx.Tx, id int64, delta int, at time.Time) (int, error) {
	var newStock int

	err := tx.QueryRowxContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     version = version + 1,
		     updated_at = $3
		 WHERE id = $2
		   AND stock_quantity + $1 >= 0
		 RETURNING stock_quantity`,
		delta, id, at).Scan(&newStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrInsufficientStock
		}
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}

	return newStock, nil
}

// UpdateProductPrice changes the live price. Existing order items keep the
// price they were placed at.
func UpdateProductPrice(ctx context.Context, db sqlx.ExecerContext, id int64, price decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET price = $1, version = version + 1, updated_at = NOW() WHERE id = $2`,
		price, id)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}

	return expectOneRow(result, database.ErrProductNotFound)
}

// DeactivateProduct soft-deletes a product. Its movements and order items
// stay in place.
func DeactivateProduct(ctx context.Context, db sqlx.ExecerContext, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET is_active = FALSE, version = version + 1, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}

	return expectOneRow(result, database.ErrProductNotFound)
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
