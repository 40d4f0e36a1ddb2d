package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/stock-ledger/internal/inventory"
	"github.com/safar/stock-ledger/internal/ordering"
	"github.com/safar/stock-ledger/internal/store"
	"go.uber.org/zap"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, req ordering.PlaceOrderRequest) (*ordering.OrderResponse, error)
	GetOrder(ctx context.Context, orderID, userID int64) (*ordering.OrderResponse, error)
	ListOrders(ctx context.Context, userID int64, page, pageSize int) (*store.OffsetPage[ordering.OrderResponse], error)
}

type StockService interface {
	AdjustStock(ctx context.Context, req inventory.AdjustStockRequest, actorID int64) (*inventory.StockMovementResponse, error)
	GetProduct(ctx context.Context, productID int64) (*inventory.ProductView, error)
	ListMovements(ctx context.Context, productID int64, cursor string, limit int) (*store.CursorPage[inventory.StockMovementResponse], error)
	Reconcile(ctx context.Context, productID int64) (*inventory.ReconcileReport, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	orders OrderService
	stock  StockService
	db     Pinger
	logger *zap.Logger
}

func NewHandler(orders OrderService, stock StockService, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, stock: stock, db: db, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req ordering.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	result, err := h.orders.ListOrders(r.Context(), userIDFrom(r.Context()), page, pageSize)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "order")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	product, err := h.stock.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// AdjustStock takes the product from the path; a productId in the body is
// ignored.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	var req inventory.AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	req.ProductID = id

	movement, err := h.stock.AdjustStock(r.Context(), req, userIDFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, movement)
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.stock.ListMovements(r.Context(), id, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	report, err := h.stock.Reconcile(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func pathID(w http.ResponseWriter, r *http.Request, entity string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid "+entity+" id")
		return 0, false
	}
	return id, true
}
