// Package ordering places and reads customer orders. Placing an order
// deducts stock, writes one Sale movement per line and stores the order in a
// single transaction; any failure leaves no trace.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/apperr"
	"github.com/safar/stock-ledger/internal/cache"
	"github.com/safar/stock-ledger/internal/database"
	"github.com/safar/stock-ledger/internal/events"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/safar/stock-ledger/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SaleReason labels the movements written for order lines.
const SaleReason = "order sale"

var tracer = otel.Tracer("github.com/safar/stock-ledger/internal/ordering")

type placementState string

const (
	stateStarted    placementState = "started"
	stateValidating placementState = "validating"
	stateCommitted  placementState = "committed"
	stateRolledBack placementState = "rolled_back"
)

type Service struct {
	db          *sqlx.DB
	logger      *zap.Logger
	cache       cache.Cache
	cacheTTL    time.Duration
	txOpts      database.TxOptions
	orderTopic  string
	stockTopic  string
	maxPageSize int
	now         func() time.Time
}

type Option func(*Service)

// WithCache enables the read-through cache for GetOrder.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithTxOptions(opts database.TxOptions) Option {
	return func(s *Service) { s.txOpts = opts }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTopics(orderTopic, stockTopic string) Option {
	return func(s *Service) {
		s.orderTopic = orderTopic
		s.stockTopic = stockTopic
	}
}

func WithMaxPageSize(n int) Option {
	return func(s *Service) { s.maxPageSize = n }
}

func NewService(db *sqlx.DB, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:          db,
		logger:      logger,
		txOpts:      database.DefaultTxOptions(),
		orderTopic:  events.DefaultOrderTopic,
		stockTopic:  events.DefaultStockTopic,
		maxPageSize: store.MaxPageSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validatePlacement(userID int64, req PlaceOrderRequest) error {
	if userID <= 0 {
		return apperr.InvalidArgument("user id must be positive")
	}
	if len(req.Items) == 0 {
		return apperr.InvalidArgument("order must contain at least one item")
	}
	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return apperr.InvalidArgument("item %d: quantity must be greater than zero", i+1)
		}
		if line.Quantity > models.MaxStock {
			return apperr.InvalidArgument("item %d: quantity must not exceed %d", i+1, models.MaxStock)
		}
	}
	return nil
}

// PlaceOrder reserves stock for every line in input order and records the
// order. Lines naming the same product are deducted one after another
// against the running stock.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, req PlaceOrderRequest) (*OrderResponse, error) {
	ctx, span := tracer.Start(ctx, "ordering.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("order.lines", len(req.Items)),
	)

	log := s.logger.With(zap.Int64("user_id", userID))
	log.Debug("Order placement", zap.String("state", string(stateStarted)))

	if err := validatePlacement(userID, req); err != nil {
		log.Debug("Order placement", zap.String("state", string(stateRolledBack)), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var order *models.Order

	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		log.Debug("Order placement", zap.String("state", string(stateValidating)))

		placed, err := s.placeInTx(ctx, tx, userID, req)
		if err != nil {
			return err
		}

		order = placed
		return nil
	})
	if err != nil {
		err = apperr.Ensure(err, "place order")
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.PublicMessage(err))

		fields := []zap.Field{
			zap.String("state", string(stateRolledBack)),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		}
		if apperr.KindOf(err) == apperr.KindUnexpected && !database.IsCanceled(err) {
			log.Error("Order placement", fields...)
		} else {
			log.Info("Order placement", fields...)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	log.Info("Order placement",
		zap.String("state", string(stateCommitted)),
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	resp := toOrderResponse(order)
	return &resp, nil
}

// placeInTx is one attempt at placing the order. It may run more than once
// when the transaction is retried, so it builds all state from scratch.
func (s *Service) placeInTx(ctx context.Context, tx *sqlx.Tx, userID int64, req PlaceOrderRequest) (*models.Order, error) {
	now := s.now()
	items := make([]models.OrderItem, 0, len(req.Items))

	for i, line := range req.Items {
		product, err := store.LockProduct(ctx, tx, line.ProductID)
		if errors.Is(err, database.ErrProductNotFound) {
			return nil, apperr.NotFound(err, "product %d not found", line.ProductID)
		}
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, apperr.NotFound(database.ErrProductNotFound, "product %d not found", line.ProductID)
		}

		if product.StockQuantity < line.Quantity {
			return nil, apperr.InvalidState(database.ErrInsufficientStock,
				"insufficient stock for product %q: available %d, requested %d",
				product.Name, product.StockQuantity, line.Quantity)
		}

		newStock, err := store.ApplyStockDelta(ctx, tx, product.ID, -line.Quantity, now)
		if err != nil {
			return nil, err
		}

		movement := models.StockMovement{
			ProductID:     product.ID,
			Quantity:      line.Quantity,
			Type:          models.MovementSale,
			Reason:        SaleReason,
			ActorID:       userID,
			PreviousStock: product.StockQuantity,
			NewStock:      newStock,
			CreatedAt:     now,
		}
		if err := store.InsertMovement(ctx, tx, &movement); err != nil {
			return nil, err
		}

		product.StockQuantity = newStock
		if err := events.Enqueue(ctx, tx, s.stockTopic, events.Key(product.ID), events.TypeStockMoved,
			events.StockMovedFrom(movement, product.BelowMinimum()), now); err != nil {
			return nil, err
		}

		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			LineNo:      i + 1,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			CreatedAt:   now,
		})
	}

	total := models.OrderTotal(items)
	if total.GreaterThan(models.MaxOrderTotal) {
		return nil, apperr.InvalidState(nil, "order total %s exceeds the maximum of %s",
			total.StringFixed(2), models.MaxOrderTotal.StringFixed(2))
	}

	order := &models.Order{
		UserID:      userID,
		Status:      models.OrderStatusPending,
		TotalAmount: total,
		OrderDate:   now,
	}
	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for i := range items {
		items[i].OrderID = order.ID
		if err := store.InsertOrderItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}
	order.Items = items

	if err := events.Enqueue(ctx, tx, s.orderTopic, events.Key(order.ID), events.TypeOrderPlaced,
		events.OrderPlacedFrom(*order), now); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder returns an order owned by userID.
func (s *Service) GetOrder(ctx context.Context, orderID, userID int64) (*OrderResponse, error) {
	ctx, span := tracer.Start(ctx, "ordering.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.Int64("user.id", userID))

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.PublicMessage(err))
		return nil, err
	}

	if order.UserID != userID {
		err := apperr.Forbidden("order does not belong to the requesting user")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := toOrderResponse(order)
	return &resp, nil
}

// loadOrder reads through the cache when one is configured. Cache failures
// are logged and fall back to the database.
func (s *Service) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var key string
	if s.cache != nil {
		key = s.cache.GenerateKey("order", strconv.FormatInt(orderID, 10))

		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Order cache read failed", zap.Int64("order_id", orderID), zap.Error(err))
		} else if cached != "" {
			var order models.Order
			if err := json.Unmarshal([]byte(cached), &order); err == nil {
				return &order, nil
			}
			s.logger.Warn("Discarding undecodable cached order", zap.Int64("order_id", orderID))
		}
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if errors.Is(err, database.ErrOrderNotFound) {
		return nil, apperr.NotFound(err, "order %d not found", orderID)
	}
	if err != nil {
		return nil, apperr.Unexpected(err, "get order %d", orderID)
	}

	if s.cache != nil {
		data, err := json.Marshal(order)
		if err == nil {
			err = s.cache.Set(ctx, key, data, s.cacheTTL)
		}
		if err != nil {
			s.logger.Warn("Order cache write failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}

	return order, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64, page, pageSize int) (*store.OffsetPage[OrderResponse], error) {
	if userID <= 0 {
		return nil, apperr.InvalidArgument("user id must be positive")
	}

	page, pageSize = store.ClampPage(page, pageSize, s.maxPageSize)

	result, err := store.ListOrders(ctx, s.db, userID, page, pageSize)
	if err != nil {
		return nil, apperr.Unexpected(err, "list orders for user %d", userID)
	}

	items := make([]OrderResponse, len(result.Items))
	for i := range result.Items {
		items[i] = toOrderResponse(&result.Items[i])
	}

	return &store.OffsetPage[OrderResponse]{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}
