package masterinventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/batch"
)

func intPtr(v int) *int { return &v }

func TestClassify(t *testing.T) {
	th := Thresholds{MinimumStockLevel: 10, MaximumStockLevel: intPtr(20)}
	assert.Equal(t, StatusOutOfStock, Classify(0, th))
	assert.Equal(t, StatusLowStock, Classify(10, th))
	assert.Equal(t, StatusNormal, Classify(11, th))
	assert.Equal(t, StatusNormal, Classify(20, th))
	assert.Equal(t, StatusOverstocked, Classify(21, th))
	assert.Equal(t, StatusNormal, Classify(500, Thresholds{MinimumStockLevel: 10}))
}

func TestRecomputeAggregatesAcrossStores(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	inv := MasterInventory{ID: 3, ProductID: 9, Thresholds: Thresholds{MinimumStockLevel: 10, MaximumStockLevel: intPtr(20)}}
	batches := []batch.Batch{
		{ID: 1, ProductID: 9, StoreID: 100, Quantity: 5, Availability: true, IsActive: true,
			CostPrice: decimal.NewFromInt(10), SellPrice: decimal.NewFromInt(20)},
		{ID: 2, ProductID: 9, StoreID: 200, Quantity: 50, Availability: true, IsActive: true,
			CostPrice: decimal.NewFromInt(12), SellPrice: decimal.NewFromInt(22)},
	}

	out := Recompute(inv, batches, UnitCounts{Damaged: 1, Reserved: 2}, now)

	assert.Equal(t, 55, out.TotalQuantity)
	assert.Equal(t, 55, out.AvailableQuantity)
	assert.Equal(t, StatusOverstocked, out.StockStatus, "aggregate status reflects combined availability")
	assert.Equal(t, map[int64]int{100: 5, 200: 50}, out.StoreBreakdown)
	assert.Equal(t, map[int64]int{1: 5, 2: 50}, out.BatchBreakdown)
	// (5*10 + 50*12) / 55 = 11.818...
	assert.True(t, decimal.RequireFromString("11.82").Equal(out.AverageCostPrice), out.AverageCostPrice.String())
	// (5*20 + 50*22) / 55 = 21.818...
	assert.True(t, decimal.RequireFromString("21.82").Equal(out.AverageSellPrice), out.AverageSellPrice.String())
	assert.True(t, decimal.RequireFromString("1200.1").Equal(out.TotalValue), out.TotalValue.String())
	assert.Equal(t, 1, out.DamagedQuantity)
	assert.Equal(t, 2, out.ReservedQuantity)
	assert.Equal(t, int64(3), out.ID)
	assert.Equal(t, now, out.LastUpdatedAt)
}

func TestRecomputeSeparatesAvailableFromTotal(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	batches := []batch.Batch{
		{ID: 1, ProductID: 4, StoreID: 1, Quantity: 8, Availability: true, IsActive: true},
		{ID: 2, ProductID: 4, StoreID: 1, Quantity: 3, Availability: true, IsActive: true, ExpiresAt: &expired},
		{ID: 3, ProductID: 4, StoreID: 2, Quantity: 6, Availability: false, IsActive: true},
		{ID: 4, ProductID: 4, StoreID: 2, Quantity: 100, Availability: true, IsActive: false},
	}

	out := Recompute(MasterInventory{ProductID: 4}, batches, UnitCounts{}, now)

	require.Equal(t, 17, out.TotalQuantity)
	require.Equal(t, 8, out.AvailableQuantity)
	require.LessOrEqual(t, out.AvailableQuantity, out.TotalQuantity)
	require.Equal(t, map[int64]int{1: 11, 2: 6}, out.StoreBreakdown)
	require.NotContains(t, out.BatchBreakdown, int64(4))
}

func TestRecomputeEmptyIsOutOfStock(t *testing.T) {
	out := Recompute(MasterInventory{ProductID: 1}, nil, UnitCounts{}, time.Now())
	assert.Equal(t, StatusOutOfStock, out.StockStatus)
	assert.True(t, out.AverageCostPrice.IsZero())
	assert.True(t, out.TotalValue.IsZero())
}

func TestRecomputeIsDeterministic(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	batches := []batch.Batch{
		{ID: 1, ProductID: 2, StoreID: 1, Quantity: 7, Availability: true, IsActive: true, SellPrice: decimal.NewFromInt(3)},
	}
	first := Recompute(MasterInventory{ProductID: 2}, batches, UnitCounts{}, now)
	second := Recompute(first, batches, UnitCounts{}, now)
	assert.Equal(t, first, second)
}

func TestStoreImbalances(t *testing.T) {
	out := StoreImbalances(map[int64]int{1: 10, 2: 10, 3: 40})
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].StoreID)
	assert.Equal(t, 20, out[0].Excess)
	assert.True(t, decimal.NewFromInt(20).Equal(out[0].Mean))

	assert.Empty(t, StoreImbalances(map[int64]int{1: 10, 2: 14}))
	assert.Empty(t, StoreImbalances(map[int64]int{1: 99}))
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, Thresholds{MinimumStockLevel: 2, MaximumStockLevel: intPtr(5)}.Validate())
	require.Error(t, Thresholds{MinimumStockLevel: -1}.Validate())
	require.Error(t, Thresholds{MinimumStockLevel: 6, MaximumStockLevel: intPtr(5)}.Validate())
}

func TestExcessAndReorder(t *testing.T) {
	inv := MasterInventory{AvailableQuantity: 30, Thresholds: Thresholds{MaximumStockLevel: intPtr(20), ReorderPoint: 5}}
	assert.Equal(t, 10, inv.ExcessOverMaximum())
	assert.False(t, inv.NeedsReorder())
	inv.AvailableQuantity = 5
	assert.True(t, inv.NeedsReorder())
	assert.Zero(t, inv.ExcessOverMaximum())
}
