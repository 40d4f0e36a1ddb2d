package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/stock-ledger/internal/cache"
	"github.com/safar/stock-ledger/internal/config"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/events"
	"github.com/safar/stock-ledger/internal/httpapi"
	"github.com/safar/stock-ledger/internal/inventory"
	"github.com/safar/stock-ledger/internal/logger"
	"github.com/safar/stock-ledger/internal/ordering"
	"github.com/safar/stock-ledger/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		appLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Connected to database successfully")

	txOpts := database.LedgerTxOptions(cfg.Ledger)

	orderOpts := []ordering.Option{
		ordering.WithTxOptions(txOpts),
		ordering.WithTopics(cfg.Kafka.OrderTopic, cfg.Kafka.StockTopic),
		ordering.WithMaxPageSize(cfg.Ledger.MaxOrderPageSize),
	}
	if cfg.Redis.Addr != "" {
		orderCache, err := cache.NewRedisCache(ctx, cfg.Redis, cfg.Telemetry.ServiceName)
		if err != nil {
			appLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer orderCache.Close()
		orderOpts = append(orderOpts, ordering.WithCache(orderCache, cfg.Redis.OrderTTL))
		appLogger.Info("Order cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	orders := ordering.NewService(db, appLogger.Named("ordering"), orderOpts...)
	stock := inventory.NewService(db, appLogger.Named("inventory"),
		inventory.WithTxOptions(txOpts),
		inventory.WithStockTopic(cfg.Kafka.StockTopic))

	var publisher events.Publisher
	relayDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers)
		relay := events.NewRelay(db, publisher, appLogger.Named("outbox"), cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
		go func() {
			defer close(relayDone)
			relay.Run(ctx)
		}()
	} else {
		close(relayDone)
		appLogger.Warn("No Kafka brokers configured; events stay in the outbox")
	}

	handler := httpapi.NewHandler(orders, stock, db, appLogger.Named("http"))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.NewRouter(handler, appLogger.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}

	stop()
	<-relayDone
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			appLogger.Error("Failed to close Kafka writer", zap.Error(err))
		}
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		appLogger.Error("Tracer shutdown failed", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
