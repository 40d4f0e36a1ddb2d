package ordering

import (
	"time"

	"github.com/safar/stock-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type PlaceOrderRequest struct {
	Items []OrderLine `json:"items"`
}

type OrderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderResponse struct {
	ID          int64               `json:"id"`
	OrderNumber string              `json:"orderNumber"`
	OrderDate   time.Time           `json:"orderDate"`
	Status      models.OrderStatus  `json:"status"`
	TotalAmount decimal.Decimal     `json:"totalAmount"`
	Items       []OrderItemResponse `json:"items"`
}

type OrderItemResponse struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total(),
		}
	}

	return OrderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		OrderDate:   o.OrderDate,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       items,
	}
}
