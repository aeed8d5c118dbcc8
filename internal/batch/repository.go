package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// BatchQueries persists batches and resolves the store and category lookups batches depend on.
type BatchQueries struct {
	q db.DBTX
}

// NewBatchQueries binds queries to a pool or transaction.
func NewBatchQueries(q db.DBTX) *BatchQueries {
	return &BatchQueries{q: q}
}

const batchColumns = `id, batch_number, product_id, store_id, quantity, cost_price, sell_price,
	tax_percentage, base_price, tax_amount, availability, manufactured_at, expires_at,
	primary_barcode_id, is_active, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.BatchNumber, &b.ProductID, &b.StoreID, &b.Quantity, &b.CostPrice, &b.SellPrice,
		&b.TaxPercentage, &b.BasePrice, &b.TaxAmount, &b.Availability, &b.ManufacturedAt, &b.ExpiresAt,
		&b.PrimaryBarcodeID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

// GetBatch loads a batch by id.
func (r *BatchQueries) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE id = $1`, id))
}

// GetBatchForUpdate loads and row-locks a batch.
func (r *BatchQueries) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE id = $1 FOR UPDATE`, id))
}

// InsertBatch stores a new batch.
func (r *BatchQueries) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO product_batches
		(batch_number, product_id, store_id, quantity, cost_price, sell_price, tax_percentage, base_price,
		 tax_amount, availability, manufactured_at, expires_at, primary_barcode_id, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at, updated_at`,
		b.BatchNumber, b.ProductID, b.StoreID, b.Quantity, b.CostPrice, b.SellPrice, b.TaxPercentage, b.BasePrice,
		b.TaxAmount, b.Availability, b.ManufacturedAt, b.ExpiresAt, b.PrimaryBarcodeID, b.IsActive,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Batch{}, fmt.Errorf("batch number %s already used: %w", b.BatchNumber, errDuplicateNumber)
		}
		return Batch{}, fmt.Errorf("insert batch: %w", err)
	}
	return b, nil
}

// UpdateBatchStock persists quantity and availability.
func (r *BatchQueries) UpdateBatchStock(ctx context.Context, b Batch) error {
	tag, err := r.q.Exec(ctx, `UPDATE product_batches SET quantity = $2, availability = $3, updated_at = NOW()
		WHERE id = $1`, b.ID, b.Quantity, b.Availability)
	if err != nil {
		return fmt.Errorf("update batch stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBatchPricing persists prices and the derived tax split.
func (r *BatchQueries) UpdateBatchPricing(ctx context.Context, b Batch) error {
	tag, err := r.q.Exec(ctx, `UPDATE product_batches SET cost_price = $2, sell_price = $3, tax_percentage = $4,
		base_price = $5, tax_amount = $6, updated_at = NOW() WHERE id = $1`,
		b.ID, b.CostPrice, b.SellPrice, b.TaxPercentage, b.BasePrice, b.TaxAmount)
	if err != nil {
		return fmt.Errorf("update batch pricing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBatchPrimaryBarcode points the batch at its representative unit.
func (r *BatchQueries) SetBatchPrimaryBarcode(ctx context.Context, batchID, barcodeID int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE product_batches SET primary_barcode_id = $2, updated_at = NOW() WHERE id = $1`,
		batchID, barcodeID)
	if err != nil {
		return fmt.Errorf("set primary barcode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBatchesByProduct returns a product's batches ordered by store then id.
func (r *BatchQueries) ListBatchesByProduct(ctx context.Context, productID int64, activeOnly bool) ([]Batch, error) {
	rows, err := r.q.Query(ctx, `SELECT `+batchColumns+` FROM product_batches
		WHERE product_id = $1 AND ($2 = FALSE OR is_active)
		ORDER BY store_id, id`, productID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CategoryTaxPercentage returns the product category tax rate, nil when the category sets none.
func (r *BatchQueries) CategoryTaxPercentage(ctx context.Context, productID int64) (*decimal.Decimal, error) {
	var rate decimal.NullDecimal
	err := r.q.QueryRow(ctx, `SELECT c.tax_percentage FROM products p
		LEFT JOIN product_categories c ON c.id = p.category_id
		WHERE p.id = $1`, productID).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}
	if !rate.Valid {
		return nil, nil
	}
	return &rate.Decimal, nil
}

// GetStore loads a store.
func (r *BatchQueries) GetStore(ctx context.Context, id int64) (Store, error) {
	var (
		s    Store
		kind string
	)
	err := r.q.QueryRow(ctx, `SELECT id, name, store_type, is_active FROM stores WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &kind, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Store{}, fmt.Errorf("store %d: %w", id, ErrNotFound)
		}
		return Store{}, err
	}
	s.Kind = StoreKind(kind)
	return s, nil
}

// ListStores returns active stores ordered by id.
func (r *BatchQueries) ListStores(ctx context.Context) ([]Store, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, store_type, is_active FROM stores WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()
	var out []Store
	for rows.Next() {
		var (
			s    Store
			kind string
		)
		if err := rows.Scan(&s.ID, &s.Name, &kind, &s.IsActive); err != nil {
			return nil, err
		}
		s.Kind = StoreKind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}
