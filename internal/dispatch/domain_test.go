package dispatch

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemApplyReceipt(t *testing.T) {
	it := Item{ID: 1, Quantity: 10}
	require.NoError(t, it.Apply(nil))
	assert.Equal(t, ItemReceived, it.Status)
	assert.Equal(t, 10, it.ReceivedQuantity)
	assert.False(t, it.HasDiscrepancy())

	it = Item{ID: 2, Quantity: 10}
	require.NoError(t, it.Apply(&Receipt{Received: 7, Missing: 3, Notes: "short"}))
	assert.Equal(t, ItemMissing, it.Status)
	assert.Equal(t, "short", it.Notes)
	assert.True(t, it.HasDiscrepancy())

	it = Item{ID: 3, Quantity: 10}
	require.NoError(t, it.Apply(&Receipt{Received: 5, Damaged: 2, Missing: 3}))
	assert.Equal(t, ItemDamaged, it.Status)

	it = Item{ID: 4, Quantity: 10}
	require.ErrorIs(t, it.Apply(&Receipt{Received: 9}), ErrInvalidReceipt)
	require.ErrorIs(t, it.Apply(&Receipt{Received: 11, Damaged: -1}), ErrInvalidReceipt)
	assert.Empty(t, it.Status)
}

func TestRecalculateTotals(t *testing.T) {
	d := Dispatch{Items: []Item{
		{BatchID: 1, Quantity: 3, UnitCost: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(15)},
		{BatchID: 2, Quantity: 2, UnitCost: decimal.RequireFromString("2.5"), UnitPrice: decimal.NewFromInt(4)},
		{BatchID: 1, Quantity: 1, UnitCost: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(15)},
	}}
	d.Recalculate()
	assert.Equal(t, 3, d.TotalItems)
	assert.Equal(t, 6, d.TotalQuantity)
	assert.Equal(t, "45", d.TotalCost.String())
	assert.Equal(t, "68", d.TotalValue.String())
	assert.Equal(t, 4, d.Allocated(1))
	assert.Equal(t, 0, d.Allocated(9))

	d.Items = nil
	d.Recalculate()
	assert.Zero(t, d.TotalQuantity)
	assert.True(t, d.TotalCost.IsZero())
}

func TestStatusGuards(t *testing.T) {
	assert.True(t, StatusPending.CanEdit())
	assert.False(t, StatusInTransit.CanEdit())
	assert.True(t, StatusInTransit.CanDeliver())
	assert.False(t, StatusPending.CanDeliver())
	assert.True(t, StatusInTransit.CanCancel())
	assert.False(t, StatusDelivered.CanCancel())
	assert.False(t, StatusCancelled.CanCancel())
	assert.False(t, Status("lost").IsValid())
}

func TestNewDispatchNumber(t *testing.T) {
	n := NewDispatchNumber(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^DSP-20250102-[0-9A-F]{6}$`), n)
}
