package inventory

import (
	"time"

	"github.com/safar/stock-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type AdjustStockRequest struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
}

// StockMovementResponse describes one applied movement. QuantityChanged is
// signed: negative for a Sale.
type StockMovementResponse struct {
	MovementID      int64               `json:"movementId"`
	ProductID       int64               `json:"productId"`
	ProductName     string              `json:"productName"`
	PreviousStock   int                 `json:"previousStock"`
	NewStock        int                 `json:"newStock"`
	QuantityChanged int                 `json:"quantityChanged"`
	Type            models.MovementType `json:"type"`
	Reason          string              `json:"reason"`
	CreatedAt       time.Time           `json:"createdAt"`
	ActorID         int64               `json:"actorId"`
}

type ProductView struct {
	ID                int64           `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Category          string          `json:"category,omitempty"`
	Price             decimal.Decimal `json:"price"`
	StockQuantity     int             `json:"stockQuantity"`
	MinimumStockLevel int             `json:"minimumStockLevel"`
	BelowMinimum      bool            `json:"belowMinimum"`
	IsActive          bool            `json:"isActive"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type ReconcileReport struct {
	ProductID   int64 `json:"productId"`
	CachedStock int   `json:"cachedStock"`
	LedgerStock int   `json:"ledgerStock"`
	Consistent  bool  `json:"consistent"`
}

func toProductView(p *models.Product) *ProductView {
	return &ProductView{
		ID:                p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		Category:          p.Category,
		Price:             p.Price,
		StockQuantity:     p.StockQuantity,
		MinimumStockLevel: p.MinimumStockLevel,
		BelowMinimum:      p.BelowMinimum(),
		IsActive:          p.IsActive,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toMovementResponse(m models.StockMovement, productName string) *StockMovementResponse {
	return &StockMovementResponse{
		MovementID:      m.ID,
		ProductID:       m.ProductID,
		ProductName:     productName,
		PreviousStock:   m.PreviousStock,
		NewStock:        m.NewStock,
		QuantityChanged: m.SignedDelta(),
		Type:            m.Type,
		Reason:          m.Reason,
		CreatedAt:       m.CreatedAt,
		ActorID:         m.ActorID,
	}
}
