package memstore

import (
	"context"
	"maps"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
)

// GetMasterInventory loads a product aggregate.
func (t *Tx) GetMasterInventory(_ context.Context, productID int64) (masterinventory.MasterInventory, error) {
	inv, ok := t.state.inventories[productID]
	if !ok {
		return masterinventory.MasterInventory{}, masterinventory.ErrNotFound
	}
	return inv, nil
}

// GetMasterInventoryForUpdate loads a product aggregate; transactions are already serialized.
func (t *Tx) GetMasterInventoryForUpdate(ctx context.Context, productID int64) (masterinventory.MasterInventory, error) {
	if err := t.fail("GetMasterInventoryForUpdate"); err != nil {
		return masterinventory.MasterInventory{}, err
	}
	return t.GetMasterInventory(ctx, productID)
}

// UpsertMasterInventory replaces the aggregate for the product.
func (t *Tx) UpsertMasterInventory(_ context.Context, m masterinventory.MasterInventory) (masterinventory.MasterInventory, error) {
	if err := t.fail("UpsertMasterInventory"); err != nil {
		return masterinventory.MasterInventory{}, err
	}
	if cur, ok := t.state.inventories[m.ProductID]; ok {
		m.ID = cur.ID
		m.CreatedAt = cur.CreatedAt
	} else {
		m.ID = t.state.id()
		m.CreatedAt = t.now()
	}
	m.StoreBreakdown = maps.Clone(m.StoreBreakdown)
	m.BatchBreakdown = maps.Clone(m.BatchBreakdown)
	t.state.inventories[m.ProductID] = m
	return m, nil
}

// CountUnitStates tallies damaged and committed units of a product.
func (t *Tx) CountUnitStates(_ context.Context, productID int64) (masterinventory.UnitCounts, error) {
	var c masterinventory.UnitCounts
	for _, u := range t.state.units {
		if u.ProductID != productID {
			continue
		}
		if u.IsDefective && (u.CurrentStatus == barcode.StatusDefective || u.CurrentStatus == barcode.StatusRepair) {
			c.Damaged++
		}
		if u.IsActive && (u.CurrentStatus == barcode.StatusInTransit || u.CurrentStatus == barcode.StatusInShipment) {
			c.Reserved++
		}
	}
	return c, nil
}

// ListLowStockInventories returns aggregates at or under their minimum or reorder point.
func (t *Tx) ListLowStockInventories(_ context.Context) ([]masterinventory.MasterInventory, error) {
	var out []masterinventory.MasterInventory
	for _, inv := range sortedValues(t.state.inventories) {
		if inv.NeedsReorder() {
			out = append(out, inv)
		}
	}
	slices.SortStableFunc(out, func(a, b masterinventory.MasterInventory) int {
		return a.AvailableQuantity - b.AvailableQuantity
	})
	return out, nil
}

// ListInventoriesByStatus returns aggregates with the given status ordered by product.
func (t *Tx) ListInventoriesByStatus(_ context.Context, status masterinventory.StockStatus) ([]masterinventory.MasterInventory, error) {
	var out []masterinventory.MasterInventory
	for _, inv := range sortedValues(t.state.inventories) {
		if inv.StockStatus == status {
			out = append(out, inv)
		}
	}
	return out, nil
}

// ListStockedProductIDs returns products with batches or an aggregate.
func (t *Tx) ListStockedProductIDs(_ context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, b := range t.state.batches {
		seen[b.ProductID] = struct{}{}
	}
	for id := range t.state.inventories {
		seen[id] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}
