package memstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// GetBatch loads a batch.
func (t *Tx) GetBatch(_ context.Context, id int64) (batch.Batch, error) {
	if err := t.fail("GetBatch"); err != nil {
		return batch.Batch{}, err
	}
	b, ok := t.state.batches[id]
	if !ok {
		return batch.Batch{}, batch.ErrNotFound
	}
	return b, nil
}

// GetBatchForUpdate loads a batch; transactions are already serialized.
func (t *Tx) GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error) {
	return t.GetBatch(ctx, id)
}

// InsertBatch stores a new batch.
func (t *Tx) InsertBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	if err := t.fail("InsertBatch"); err != nil {
		return batch.Batch{}, err
	}
	for _, existing := range t.state.batches {
		if existing.BatchNumber == b.BatchNumber {
			return batch.Batch{}, fmt.Errorf("batch number %s already used: %w", b.BatchNumber, shared.ErrConflict)
		}
	}
	b.ID = t.state.id()
	b.CreatedAt = t.now()
	b.UpdatedAt = b.CreatedAt
	t.state.batches[b.ID] = b
	return b, nil
}

// UpdateBatchStock persists quantity and availability.
func (t *Tx) UpdateBatchStock(_ context.Context, b batch.Batch) error {
	if err := t.fail("UpdateBatchStock"); err != nil {
		return err
	}
	cur, ok := t.state.batches[b.ID]
	if !ok {
		return batch.ErrNotFound
	}
	cur.Quantity = b.Quantity
	cur.Availability = b.Availability
	cur.UpdatedAt = t.now()
	t.state.batches[b.ID] = cur
	return nil
}

// UpdateBatchPricing persists prices and the tax split.
func (t *Tx) UpdateBatchPricing(_ context.Context, b batch.Batch) error {
	if err := t.fail("UpdateBatchPricing"); err != nil {
		return err
	}
	cur, ok := t.state.batches[b.ID]
	if !ok {
		return batch.ErrNotFound
	}
	cur.CostPrice = b.CostPrice
	cur.SellPrice = b.SellPrice
	cur.TaxPercentage = b.TaxPercentage
	cur.BasePrice = b.BasePrice
	cur.TaxAmount = b.TaxAmount
	cur.UpdatedAt = t.now()
	t.state.batches[b.ID] = cur
	return nil
}

// SetBatchPrimaryBarcode points the batch at a unit.
func (t *Tx) SetBatchPrimaryBarcode(_ context.Context, batchID, barcodeID int64) error {
	cur, ok := t.state.batches[batchID]
	if !ok {
		return batch.ErrNotFound
	}
	cur.PrimaryBarcodeID = &barcodeID
	t.state.batches[batchID] = cur
	return nil
}

// ListBatchesByProduct returns a product's batches ordered by store then id.
func (t *Tx) ListBatchesByProduct(_ context.Context, productID int64, activeOnly bool) ([]batch.Batch, error) {
	if err := t.fail("ListBatchesByProduct"); err != nil {
		return nil, err
	}
	var out []batch.Batch
	for _, b := range sortedValues(t.state.batches) {
		if b.ProductID != productID || (activeOnly && !b.IsActive) {
			continue
		}
		out = append(out, b)
	}
	sortByStore(out)
	return out, nil
}

// CategoryTaxPercentage returns the seeded category rate of a product.
func (t *Tx) CategoryTaxPercentage(_ context.Context, productID int64) (*decimal.Decimal, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, batch.ErrNotFound)
	}
	return p.categoryTax, nil
}

// GetStore loads a store.
func (t *Tx) GetStore(_ context.Context, id int64) (batch.Store, error) {
	s, ok := t.state.stores[id]
	if !ok {
		return batch.Store{}, fmt.Errorf("store %d: %w", id, batch.ErrNotFound)
	}
	return s, nil
}

// ListStores returns active stores ordered by id.
func (t *Tx) ListStores(_ context.Context) ([]batch.Store, error) {
	var out []batch.Store
	for _, s := range sortedValues(t.state.stores) {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}
