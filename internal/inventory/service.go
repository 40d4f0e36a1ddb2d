// Package inventory applies stock movements. Every change to a product's
// stock counter is recorded as exactly one ledger row in the same
// transaction.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/apperr"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/events"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/safar/stock-ledger/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/safar/stock-ledger/internal/inventory")

type Service struct {
	db         *sqlx.DB
	logger     *zap.Logger
	txOpts     database.TxOptions
	stockTopic string
	now        func() time.Time
}

type Option func(*Service)

func WithTxOptions(opts database.TxOptions) Option {
	return func(s *Service) { s.txOpts = opts }
}

// WithClock replaces the UTC wall clock used to stamp movements.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithStockTopic(topic string) Option {
	return func(s *Service) { s.stockTopic = topic }
}

func NewService(db *sqlx.DB, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:         db,
		logger:     logger,
		txOpts:     database.DefaultTxOptions(),
		stockTopic: events.DefaultStockTopic,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateAdjustment(req AdjustStockRequest, actorID int64) (models.MovementType, error) {
	if req.Quantity <= 0 {
		return "", apperr.InvalidArgument("quantity must be greater than zero")
	}
	if req.Quantity > models.MaxStock {
		return "", apperr.InvalidArgument("quantity must not exceed %d", models.MaxStock)
	}
	if actorID <= 0 {
		return "", apperr.InvalidArgument("actor id must be positive")
	}

	movementType, err := models.ParseMovementType(req.Type)
	if err != nil {
		return "", apperr.InvalidState(err, "unrecognized movement type %q", req.Type)
	}

	if movementType == models.MovementAdjustment && strings.TrimSpace(req.Reason) == "" {
		return "", apperr.InvalidArgument("reason is required for an adjustment")
	}

	return movementType, nil
}

// AdjustStock applies one Purchase, Sale or Adjustment to a product. The
// product row stays locked from the stock check until commit.
func (s *Service) AdjustStock(ctx context.Context, req AdjustStockRequest, actorID int64) (*StockMovementResponse, error) {
	ctx, span := tracer.Start(ctx, "inventory.AdjustStock")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", req.ProductID),
		attribute.String("movement.type", req.Type),
		attribute.Int("movement.quantity", req.Quantity),
	)

	movementType, err := validateAdjustment(req, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var (
		movement models.StockMovement
		product  *models.Product
	)

	err = database.WithRetry(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		now := s.now()

		p, err := store.LockProduct(ctx, tx, req.ProductID)
		if errors.Is(err, database.ErrProductNotFound) {
			return apperr.NotFound(err, "product %d not found", req.ProductID)
		}
		if err != nil {
			return err
		}
		if !p.IsActive {
			return apperr.NotFound(database.ErrProductNotFound, "product %d not found", req.ProductID)
		}

		delta := movementType.SignedDelta(req.Quantity)
		if p.StockQuantity+delta < 0 {
			return apperr.InvalidState(database.ErrInsufficientStock,
				"insufficient stock for product %q: available %d, requested %d",
				p.Name, p.StockQuantity, req.Quantity)
		}
		if p.StockQuantity+delta > models.MaxStock {
			return apperr.InvalidState(nil,
				"stock for product %q would exceed %d: available %d, adding %d",
				p.Name, models.MaxStock, p.StockQuantity, delta)
		}

		newStock, err := store.ApplyStockDelta(ctx, tx, p.ID, delta, now)
		if err != nil {
			return err
		}

		m := models.StockMovement{
			ProductID:     p.ID,
			Quantity:      req.Quantity,
			Type:          movementType,
			Reason:        strings.TrimSpace(req.Reason),
			ActorID:       actorID,
			PreviousStock: p.StockQuantity,
			NewStock:      newStock,
			CreatedAt:     now,
		}
		if err := store.InsertMovement(ctx, tx, &m); err != nil {
			return err
		}

		p.StockQuantity = newStock
		if err := events.Enqueue(ctx, tx, s.stockTopic, events.Key(p.ID), events.TypeStockMoved,
			events.StockMovedFrom(m, p.BelowMinimum()), now); err != nil {
			return err
		}

		movement, product = m, p
		return nil
	})
	if err != nil {
		err = apperr.Ensure(err, "adjust stock for product %d", req.ProductID)
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.PublicMessage(err))
		switch {
		case database.IsCanceled(err):
			s.logger.Info("Stock adjustment cancelled",
				zap.Int64("product_id", req.ProductID),
				zap.Error(err))
		case apperr.KindOf(err) == apperr.KindUnexpected:
			s.logger.Error("Stock adjustment failed",
				zap.Int64("product_id", req.ProductID),
				zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("movement.id", movement.ID))

	s.logger.Info("Stock adjusted",
		zap.Int64("product_id", product.ID),
		zap.Int64("movement_id", movement.ID),
		zap.String("type", string(movement.Type)),
		zap.Int("previous_stock", movement.PreviousStock),
		zap.Int("new_stock", movement.NewStock),
		zap.Int64("actor_id", actorID))

	if product.BelowMinimum() {
		s.logger.Warn("Stock below minimum level",
			zap.Int64("product_id", product.ID),
			zap.Int("stock", product.StockQuantity),
			zap.Int("minimum", product.MinimumStockLevel))
	}

	return toMovementResponse(movement, product.Name), nil
}

func (s *Service) GetProduct(ctx context.Context, productID int64) (*ProductView, error) {
	product, err := store.GetProduct(ctx, s.db, productID)
	if errors.Is(err, database.ErrProductNotFound) {
		return nil, apperr.NotFound(err, "product %d not found", productID)
	}
	if err != nil {
		return nil, apperr.Unexpected(err, "get product %d", productID)
	}

	return toProductView(product), nil
}

// ListMovements pages through a product's ledger, newest first.
func (s *Service) ListMovements(ctx context.Context, productID int64, cursor string, limit int) (*store.CursorPage[StockMovementResponse], error) {
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, apperr.InvalidArgument("invalid cursor")
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	page, err := store.ListMovements(ctx, s.db, productID, cursor, limit)
	if err != nil {
		return nil, apperr.Unexpected(err, "list movements for product %d", productID)
	}

	items := make([]StockMovementResponse, len(page.Items))
	for i, m := range page.Items {
		items[i] = *toMovementResponse(m, product.Name)
	}

	return &store.CursorPage[StockMovementResponse]{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

// Reconcile recomputes a product's stock from its ledger and compares it with
// the stored counter. Both reads come from one snapshot.
func (s *Service) Reconcile(ctx context.Context, productID int64) (*ReconcileReport, error) {
	var report *ReconcileReport

	opts := database.TxOptions{IsolationLevel: sql.LevelRepeatableRead, ReadOnly: true}
	err := database.WithTransaction(ctx, s.db, opts, func(tx *sqlx.Tx) error {
		product, err := store.GetProduct(ctx, tx, productID)
		if errors.Is(err, database.ErrProductNotFound) {
			return apperr.NotFound(err, "product %d not found", productID)
		}
		if err != nil {
			return err
		}

		balance, err := store.LedgerBalance(ctx, tx, productID)
		if err != nil {
			return err
		}

		report = &ReconcileReport{
			ProductID:   productID,
			CachedStock: product.StockQuantity,
			LedgerStock: balance,
			Consistent:  product.StockQuantity == balance,
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Ensure(err, "reconcile product %d", productID)
	}

	if !report.Consistent {
		s.logger.Error("Stock counter disagrees with ledger",
			zap.Int64("product_id", productID),
			zap.Int("cached_stock", report.CachedStock),
			zap.Int("ledger_stock", report.LedgerStock))
	}

	return report, nil
}
