package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// GetBarcodeUnit loads a unit.
func (t *Tx) GetBarcodeUnit(_ context.Context, id int64) (barcode.Unit, error) {
	u, ok := t.state.units[id]
	if !ok {
		return barcode.Unit{}, barcode.ErrNotFound
	}
	return u, nil
}

// GetBarcodeUnitForUpdate loads a unit; transactions are already serialized.
func (t *Tx) GetBarcodeUnitForUpdate(ctx context.Context, id int64) (barcode.Unit, error) {
	return t.GetBarcodeUnit(ctx, id)
}

// GetBarcodeUnitByCode resolves a code.
func (t *Tx) GetBarcodeUnitByCode(_ context.Context, code string) (barcode.Unit, error) {
	for _, u := range t.state.units {
		if u.Code == code {
			return u, nil
		}
	}
	return barcode.Unit{}, barcode.ErrNotFound
}

// InsertBarcodeUnit registers a unit; codes are unique.
func (t *Tx) InsertBarcodeUnit(ctx context.Context, u barcode.Unit) (barcode.Unit, error) {
	if err := t.fail("InsertBarcodeUnit"); err != nil {
		return barcode.Unit{}, err
	}
	if _, err := t.GetBarcodeUnitByCode(ctx, u.Code); err == nil {
		return barcode.Unit{}, fmt.Errorf("%s: %w", u.Code, barcode.ErrDuplicateCode)
	}
	if u.IsPrimary && t.hasPrimary(u.ProductID, 0) {
		return barcode.Unit{}, fmt.Errorf("product %d already has a primary barcode: %w", u.ProductID, shared.ErrConflict)
	}
	u.ID = t.state.id()
	u.CreatedAt = t.now()
	u.UpdatedAt = u.CreatedAt
	t.state.units[u.ID] = u
	return u, nil
}

// UpdateBarcodeUnit writes the mutable state of a unit.
func (t *Tx) UpdateBarcodeUnit(_ context.Context, u barcode.Unit) error {
	if err := t.fail("UpdateBarcodeUnit"); err != nil {
		return err
	}
	cur, ok := t.state.units[u.ID]
	if !ok {
		return barcode.ErrNotFound
	}
	if u.IsPrimary && t.hasPrimary(cur.ProductID, u.ID) {
		return fmt.Errorf("product %d already has a primary barcode: %w", cur.ProductID, shared.ErrConflict)
	}
	cur.BatchID = u.BatchID
	cur.IsPrimary = u.IsPrimary
	cur.IsActive = u.IsActive
	cur.IsDefective = u.IsDefective
	cur.CurrentStoreID = u.CurrentStoreID
	cur.CurrentStatus = u.CurrentStatus
	cur.LocationUpdatedAt = u.LocationUpdatedAt
	cur.Location = u.Location
	cur.UpdatedAt = t.now()
	t.state.units[u.ID] = cur
	return nil
}

// TransferUnits moves up to t.Quantity candidate units, lowest id first.
func (t *Tx) TransferUnits(_ context.Context, tr barcode.Transfer) (int, error) {
	if err := t.fail("TransferUnits"); err != nil {
		return 0, err
	}
	var ids []int64
	for id, u := range t.state.units {
		if tr.Candidate(u) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > tr.Quantity {
		ids = ids[:max(tr.Quantity, 0)]
	}
	for _, id := range ids {
		u := tr.Apply(t.state.units[id])
		u.UpdatedAt = t.now()
		t.state.units[id] = u
	}
	return len(ids), nil
}

// hasPrimary mirrors the partial unique index on primary barcodes.
func (t *Tx) hasPrimary(productID, except int64) bool {
	for _, u := range t.state.units {
		if u.ProductID == productID && u.IsPrimary && u.ID != except {
			return true
		}
	}
	return false
}

// ClearPrimaryBarcode unsets the primary flag on every unit of a product.
func (t *Tx) ClearPrimaryBarcode(_ context.Context, productID int64) error {
	for id, u := range t.state.units {
		if u.ProductID == productID && u.IsPrimary {
			u.IsPrimary = false
			t.state.units[id] = u
		}
	}
	return nil
}

// HasPrimaryBarcode reports whether the product has a primary unit.
func (t *Tx) HasPrimaryBarcode(_ context.Context, productID int64) (bool, error) {
	return t.hasPrimary(productID, 0), nil
}

// InsertDefectiveProduct stores a defect record.
func (t *Tx) InsertDefectiveProduct(_ context.Context, d barcode.DefectiveProduct) (barcode.DefectiveProduct, error) {
	if err := t.fail("InsertDefectiveProduct"); err != nil {
		return barcode.DefectiveProduct{}, err
	}
	d.ID = t.state.id()
	t.state.defects[d.ID] = d
	return d, nil
}

// GetDefectiveProductForUpdate loads a defect record.
func (t *Tx) GetDefectiveProductForUpdate(_ context.Context, id int64) (barcode.DefectiveProduct, error) {
	d, ok := t.state.defects[id]
	if !ok {
		return barcode.DefectiveProduct{}, barcode.ErrNotFound
	}
	return d, nil
}

// UpdateDefectiveProduct persists a defect disposition.
func (t *Tx) UpdateDefectiveProduct(_ context.Context, d barcode.DefectiveProduct) error {
	cur, ok := t.state.defects[d.ID]
	if !ok {
		return barcode.ErrNotFound
	}
	cur.Status = d.Status
	cur.SoldPrice = d.SoldPrice
	cur.SoldOrderID = d.SoldOrderID
	cur.SoldAt = d.SoldAt
	t.state.defects[d.ID] = cur
	return nil
}

// ClaimIdempotencyKey records key once per module.
func (t *Tx) ClaimIdempotencyKey(_ context.Context, key, module string) error {
	k := idempotencyKey{key: key, module: module}
	if _, ok := t.state.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.state.keys[k] = struct{}{}
	return nil
}
