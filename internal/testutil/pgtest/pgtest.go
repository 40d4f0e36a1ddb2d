// Package pgtest starts a throwaway PostgreSQL container with the schema
// applied, for integration tests that need real locking behaviour.
package pgtest

import (
	"context"
	"flag"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/safar/stock-ledger/internal/store"
	"github.com/safar/stock-ledger/migrations"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Main is meant to be called from TestMain. It starts the container, points
// *db at it and runs the tests. With -short, or when no container runtime is
// available, *db stays nil and Fresh skips the database tests.
func Main(m *testing.M, db **sqlx.DB) int {
	flag.Parse()

	if testing.Short() {
		return m.Run()
	}

	ctx := context.Background()

	container, conn, err := start(ctx)
	if err != nil {
		log.Printf("pgtest: database tests skipped: %v", err)
		return m.Run()
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("pgtest: close database: %v", err)
		}
		if err := container.Terminate(ctx); err != nil {
			log.Printf("pgtest: terminate container: %v", err)
		}
	}()

	*db = conn
	return m.Run()
}

func start(ctx context.Context) (testcontainers.Container, *sqlx.DB, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	fail := func(err error) (testcontainers.Container, *sqlx.DB, error) {
		_ = postgres.Terminate(ctx)
		return nil, nil, err
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		return fail(fmt.Errorf("get container host: %w", err))
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		return fail(fmt.Errorf("get container port: %w", err))
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return fail(fmt.Errorf("connect to database: %w", err))
	}
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fail(fmt.Errorf("ping database: %w", err))
	}

	if _, err := migrations.Apply(ctx, db, "up"); err != nil {
		_ = db.Close()
		return fail(err)
	}

	return postgres, db, nil
}

// Fresh empties every table and returns db, or skips the test when no
// database is available.
func Fresh(t *testing.T, db *sqlx.DB) *sqlx.DB {
	t.Helper()

	if db == nil {
		t.Skip("no test database available")
	}

	_, err := db.Exec(`TRUNCATE outbox_events, order_items, orders, stock_movements, products RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("Truncate tables: %v", err)
	}

	return db
}

// SeedProduct creates an active product with the given price and opening
// stock.
func SeedProduct(t *testing.T, db *sqlx.DB, sku, price string, stock int) *models.Product {
	t.Helper()

	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:      sku,
		Name:     "Product " + sku,
		Category: "Test",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	}, 1)
	if err != nil {
		t.Fatalf("Create product %s: %v", sku, err)
	}

	return product
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()

	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM `+table); err != nil {
		t.Fatalf("Count %s: %v", table, err)
	}
	return n
}
