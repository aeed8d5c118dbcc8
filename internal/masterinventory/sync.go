package masterinventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// SyncStore is the persistence surface needed to recompute an aggregate. Workflow
// transactions satisfy it so the aggregate is refreshed alongside the batch change.
type SyncStore interface {
	GetMasterInventoryForUpdate(ctx context.Context, productID int64) (MasterInventory, error)
	UpsertMasterInventory(ctx context.Context, inv MasterInventory) (MasterInventory, error)
	ListBatchesByProduct(ctx context.Context, productID int64, activeOnly bool) ([]batch.Batch, error)
	CountUnitStates(ctx context.Context, productID int64) (UnitCounts, error)
}

// Sync fully recomputes and stores the aggregate for productID, creating it on first use.
func Sync(ctx context.Context, store SyncStore, productID int64, now time.Time) (MasterInventory, error) {
	return syncWith(ctx, store, productID, now, nil)
}

func syncWith(ctx context.Context, store SyncStore, productID int64, now time.Time, mutate func(*MasterInventory)) (MasterInventory, error) {
	if productID <= 0 {
		return MasterInventory{}, fmt.Errorf("masterinventory: invalid product %d: %w", productID, shared.ErrValidation)
	}
	inv, err := store.GetMasterInventoryForUpdate(ctx, productID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return MasterInventory{}, fmt.Errorf("lock inventory %d: %w", productID, err)
		}
		inv = MasterInventory{ProductID: productID}
	}
	if mutate != nil {
		mutate(&inv)
	}

	batches, err := store.ListBatchesByProduct(ctx, productID, true)
	if err != nil {
		return MasterInventory{}, fmt.Errorf("load batches for %d: %w", productID, err)
	}
	units, err := store.CountUnitStates(ctx, productID)
	if err != nil {
		return MasterInventory{}, fmt.Errorf("count units for %d: %w", productID, err)
	}

	next := Recompute(inv, batches, units, now)
	saved, err := store.UpsertMasterInventory(ctx, next)
	if err != nil {
		return MasterInventory{}, fmt.Errorf("store inventory %d: %w", productID, err)
	}
	return saved, nil
}
