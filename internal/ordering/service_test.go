package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/safar/stock-ledger/internal/apperr"
	"github.com/safar/stock-ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		c.entries[key] = string(v)
	default:
		c.entries[key] = fmt.Sprint(v)
	}
	c.sets++
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getErr != nil {
		return "", c.getErr
	}
	return c.entries[key], nil
}

func (c *fakeCache) GenerateKey(operation, key string) string {
	return "test:" + operation + ":" + key
}

func TestPlaceOrderRejectsInvalidInput(t *testing.T) {
	svc := NewService(nil, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		userID int64
		req    PlaceOrderRequest
	}{
		{"empty items", 5, PlaceOrderRequest{}},
		{"zero quantity", 5, PlaceOrderRequest{Items: []OrderLine{{ProductID: 1, Quantity: 0}}}},
		{"negative quantity in later line", 5, PlaceOrderRequest{Items: []OrderLine{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: -1},
		}}},
		{"quantity above column limit", 5, PlaceOrderRequest{Items: []OrderLine{{ProductID: 1, Quantity: 3_000_000_000}}}},
		{"missing user", 0, PlaceOrderRequest{Items: []OrderLine{{ProductID: 1, Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tt.userID, tt.req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
		})
	}
}

func cachedOrder(t *testing.T, c *fakeCache, order models.Order) {
	t.Helper()

	data, err := json.Marshal(order)
	require.NoError(t, err)
	c.entries[c.GenerateKey("order", fmt.Sprint(order.ID))] = string(data)
}

func TestGetOrderServedFromCache(t *testing.T) {
	c := newFakeCache()
	cachedOrder(t, c, models.Order{
		ID:          11,
		UserID:      5,
		OrderNumber: "ORD-cached",
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("200.00"),
		Items: []models.OrderItem{
			{ProductID: 3, ProductName: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("100.00")},
		},
	})

	svc := NewService(nil, zaptest.NewLogger(t), WithCache(c, time.Minute))

	resp, err := svc.GetOrder(context.Background(), 11, 5)
	require.NoError(t, err)
	assert.Equal(t, "ORD-cached", resp.OrderNumber)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "200.00", resp.Items[0].Total.StringFixed(2))
	assert.Equal(t, 0, c.sets)
}

func TestGetOrderCachedForOtherUserIsForbidden(t *testing.T) {
	c := newFakeCache()
	cachedOrder(t, c, models.Order{ID: 11, UserID: 5})

	svc := NewService(nil, zaptest.NewLogger(t), WithCache(c, time.Minute))

	_, err := svc.GetOrder(context.Background(), 11, 8)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "order does not belong to the requesting user", apperr.PublicMessage(err))
}

func TestListOrdersRejectsMissingUser(t *testing.T) {
	svc := NewService(nil, zaptest.NewLogger(t))

	_, err := svc.ListOrders(context.Background(), 0, 1, 20)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestToOrderResponse(t *testing.T) {
	order := &models.Order{
		ID:          1,
		OrderNumber: "ORD-1",
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("59.97"),
		Items: []models.OrderItem{
			{ProductID: 2, ProductName: "Mug", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		},
	}

	resp := toOrderResponse(order)

	assert.Equal(t, int64(1), resp.ID)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "59.97", resp.Items[0].Total.StringFixed(2))
	assert.True(t, resp.TotalAmount.Equal(resp.Items[0].Total))
}
