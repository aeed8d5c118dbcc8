package batch

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestRemoveStockClampsAtZero(t *testing.T) {
	b := Batch{Quantity: 10, Availability: true}

	shortfall, err := b.RemoveStock(15)
	require.NoError(t, err)
	assert.Equal(t, 5, shortfall)
	assert.Equal(t, 0, b.Quantity)
	assert.False(t, b.Availability)
}

func TestRemoveStockWithinQuantity(t *testing.T) {
	b := Batch{Quantity: 10, Availability: true}

	shortfall, err := b.RemoveStock(4)
	require.NoError(t, err)
	assert.Zero(t, shortfall)
	assert.Equal(t, 6, b.Quantity)
	assert.True(t, b.Availability)
}

func TestWithdrawRejectsOverRemoval(t *testing.T) {
	b := Batch{BatchNumber: "BT-1", Quantity: 3, Availability: true}

	err := b.Withdraw(4)
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	assert.Equal(t, 3, b.Quantity, "failed withdraw must not mutate")

	require.NoError(t, b.Withdraw(3))
	assert.Equal(t, 0, b.Quantity)
	assert.False(t, b.Availability)
}

func TestQuantityGuards(t *testing.T) {
	b := Batch{Quantity: 2}
	require.ErrorIs(t, b.UpdateQuantity(-1), shared.ErrValidation)
	require.ErrorIs(t, b.AddStock(0), shared.ErrValidation)
	_, err := b.RemoveStock(0)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, b.AddStock(3))
	assert.Equal(t, 5, b.Quantity)
	assert.True(t, b.Availability)
}

func TestIsAvailable(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, Batch{Quantity: 1, Availability: true}.IsAvailable(now))
	assert.True(t, Batch{Quantity: 1, Availability: true, ExpiresAt: &future}.IsAvailable(now))
	assert.False(t, Batch{Quantity: 1, Availability: true, ExpiresAt: &past}.IsAvailable(now))
	assert.False(t, Batch{Quantity: 0, Availability: true}.IsAvailable(now))
	assert.False(t, Batch{Quantity: 4, Availability: false}.IsAvailable(now))
}

func TestSpawnCopiesCostAndDating(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(1, 0, 0)
	src := Batch{
		ID: 1, BatchNumber: "BT-20250101-AAAAAAAA", ProductID: 7, StoreID: 1, Quantity: 20,
		CostPrice: decimal.NewFromInt(10), SellPrice: decimal.NewFromInt(15), ExpiresAt: &expiry,
	}

	dst := src.Spawn(2, 5, now)
	assert.Zero(t, dst.ID)
	assert.Equal(t, int64(2), dst.StoreID)
	assert.Equal(t, 5, dst.Quantity)
	assert.True(t, dst.Availability)
	assert.True(t, dst.IsActive)
	assert.True(t, src.CostPrice.Equal(dst.CostPrice))
	assert.True(t, src.SellPrice.Equal(dst.SellPrice))
	assert.Equal(t, &expiry, dst.ExpiresAt)
	assert.NotEqual(t, src.BatchNumber, dst.BatchNumber)
}

func TestNewBatchNumberFormat(t *testing.T) {
	n := NewBatchNumber(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC))
	require.True(t, strings.HasPrefix(n, "BT-20250203-"))
	require.Len(t, n, len("BT-20250203-")+8)
	require.Equal(t, strings.ToUpper(n), n)
}
