package models

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMovementType(t *testing.T) {
	tests := []struct {
		in      string
		want    MovementType
		wantErr bool
	}{
		{"Purchase", MovementPurchase, false},
		{"sale", MovementSale, false},
		{" ADJUSTMENT ", MovementAdjustment, false},
		{"transfer", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMovementType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignedDelta(t *testing.T) {
	assert.Equal(t, 5, MovementPurchase.SignedDelta(5))
	assert.Equal(t, -5, MovementSale.SignedDelta(5))
	assert.Equal(t, 5, MovementAdjustment.SignedDelta(5))
}

func TestOrderTotalMatchesSumOfLineTotals(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		n := rng.Intn(8) + 1
		items := make([]OrderItem, n)
		want := decimal.Zero
		for i := range items {
			cents := rng.Int63n(1_000_000)
			qty := rng.Intn(50) + 1
			items[i] = OrderItem{Quantity: qty, UnitPrice: decimal.New(cents, -2)}
			want = want.Add(decimal.New(cents*int64(qty), -2))
		}

		assert.True(t, want.Equal(OrderTotal(items)), "run %d: want %s got %s", run, want, OrderTotal(items))
	}
}

func TestOrderItemTotal(t *testing.T) {
	item := OrderItem{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")}
	assert.Equal(t, "59.97", item.Total().StringFixed(2))
}

func TestBelowMinimum(t *testing.T) {
	assert.True(t, Product{StockQuantity: 2, MinimumStockLevel: 5}.BelowMinimum())
	assert.False(t, Product{StockQuantity: 5, MinimumStockLevel: 5}.BelowMinimum())
	assert.False(t, Product{StockQuantity: 0, MinimumStockLevel: 0}.BelowMinimum())
}
