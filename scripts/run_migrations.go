package main

import (
	"context"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/safar/stock-ledger/internal/config"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(context.Background(), db, direction)
	for _, name := range applied {
		log.Printf("Ran migration: %s", name)
	}
	if err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	log.Printf("Successfully ran %d migration(s) %s", len(applied), direction)
}
