package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// BarcodeQueries persists units and defect records.
type BarcodeQueries struct {
	q db.DBTX
}

// NewBarcodeQueries binds queries to a pool or transaction.
func NewBarcodeQueries(q db.DBTX) *BarcodeQueries {
	return &BarcodeQueries{q: q}
}

const unitColumns = `id, barcode, product_id, batch_id, is_primary, is_active, is_defective,
	current_store_id, current_status, location_updated_at, location_metadata, created_at, updated_at`

func scanUnit(row pgx.Row) (Unit, error) {
	var (
		u      Unit
		status string
		meta   []byte
	)
	err := row.Scan(&u.ID, &u.Code, &u.ProductID, &u.BatchID, &u.IsPrimary, &u.IsActive, &u.IsDefective,
		&u.CurrentStoreID, &status, &u.LocationUpdatedAt, &meta, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, err
	}
	u.CurrentStatus = Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &u.Location); err != nil {
			return Unit{}, fmt.Errorf("decode location metadata: %w", err)
		}
	}
	return u, nil
}

// GetBarcodeUnit loads a unit by id.
func (r *BarcodeQueries) GetBarcodeUnit(ctx context.Context, id int64) (Unit, error) {
	return scanUnit(r.q.QueryRow(ctx, `SELECT `+unitColumns+` FROM barcode_units WHERE id = $1`, id))
}

// GetBarcodeUnitForUpdate loads and row-locks a unit.
func (r *BarcodeQueries) GetBarcodeUnitForUpdate(ctx context.Context, id int64) (Unit, error) {
	return scanUnit(r.q.QueryRow(ctx, `SELECT `+unitColumns+` FROM barcode_units WHERE id = $1 FOR UPDATE`, id))
}

// GetBarcodeUnitByCode resolves a scanned code.
func (r *BarcodeQueries) GetBarcodeUnitByCode(ctx context.Context, code string) (Unit, error) {
	return scanUnit(r.q.QueryRow(ctx, `SELECT `+unitColumns+` FROM barcode_units WHERE barcode = $1`, code))
}

// InsertBarcodeUnit registers a new unit.
func (r *BarcodeQueries) InsertBarcodeUnit(ctx context.Context, u Unit) (Unit, error) {
	meta, err := json.Marshal(u.Location)
	if err != nil {
		return Unit{}, err
	}
	err = r.q.QueryRow(ctx, `INSERT INTO barcode_units
		(barcode, product_id, batch_id, is_primary, is_active, is_defective, current_store_id, current_status,
		 location_updated_at, location_metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		u.Code, u.ProductID, u.BatchID, u.IsPrimary, u.IsActive, u.IsDefective, u.CurrentStoreID,
		string(u.CurrentStatus), u.LocationUpdatedAt, meta,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Unit{}, fmt.Errorf("%s: %w", u.Code, ErrDuplicateCode)
		}
		return Unit{}, fmt.Errorf("insert barcode unit: %w", err)
	}
	return u, nil
}

// UpdateBarcodeUnit writes the mutable state of a unit.
func (r *BarcodeQueries) UpdateBarcodeUnit(ctx context.Context, u Unit) error {
	meta, err := json.Marshal(u.Location)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `UPDATE barcode_units SET batch_id = $2, is_primary = $3, is_active = $4,
		is_defective = $5, current_store_id = $6, current_status = $7, location_updated_at = $8,
		location_metadata = $9, updated_at = NOW()
		WHERE id = $1`,
		u.ID, u.BatchID, u.IsPrimary, u.IsActive, u.IsDefective, u.CurrentStoreID, string(u.CurrentStatus),
		u.LocationUpdatedAt, meta)
	if err != nil {
		return fmt.Errorf("update barcode unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransferUnits moves up to t.Quantity candidate units of the source batch, lowest id
// first, and returns how many moved.
func (r *BarcodeQueries) TransferUnits(ctx context.Context, t Transfer) (int, error) {
	if t.Quantity <= 0 {
		return 0, nil
	}
	patch, err := json.Marshal(t.Metadata)
	if err != nil {
		return 0, err
	}
	tag, err := r.q.Exec(ctx, `UPDATE barcode_units SET batch_id = COALESCE($2, batch_id),
		current_store_id = COALESCE($3, current_store_id), current_status = $4, is_active = $5,
		is_defective = $6, location_updated_at = $7, location_metadata = location_metadata || $8::jsonb,
		updated_at = NOW()
		WHERE id IN (
			SELECT id FROM barcode_units
			WHERE batch_id = $1 AND is_active AND NOT is_defective AND current_status <> 'in_shipment'
			ORDER BY id
			LIMIT $9
			FOR UPDATE)`,
		t.FromBatchID, t.ToBatchID, t.ToStoreID, string(t.Status), !t.deactivates(),
		t.Status == StatusDefective, t.At, patch, t.Quantity)
	if err != nil {
		return 0, fmt.Errorf("transfer barcode units: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClearPrimaryBarcode unsets the primary flag on every unit of a product.
func (r *BarcodeQueries) ClearPrimaryBarcode(ctx context.Context, productID int64) error {
	_, err := r.q.Exec(ctx, `UPDATE barcode_units SET is_primary = FALSE, updated_at = NOW()
		WHERE product_id = $1 AND is_primary`, productID)
	if err != nil {
		return fmt.Errorf("clear primary barcode: %w", err)
	}
	return nil
}

// HasPrimaryBarcode reports whether the product already has a primary unit.
func (r *BarcodeQueries) HasPrimaryBarcode(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM barcode_units WHERE product_id = $1 AND is_primary)`,
		productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check primary barcode: %w", err)
	}
	return exists, nil
}

const defectColumns = `id, barcode_id, product_id, batch_id, store_id, defect_type, description, original_cost,
	minimum_price, status, sold_price, sold_order_id, identified_by, identified_at, sold_at`

func scanDefect(row pgx.Row) (DefectiveProduct, error) {
	var (
		d           DefectiveProduct
		status      string
		description *string
	)
	err := row.Scan(&d.ID, &d.BarcodeID, &d.ProductID, &d.BatchID, &d.StoreID, &d.DefectType, &description,
		&d.OriginalCost, &d.MinimumPrice, &status, &d.SoldPrice, &d.SoldOrderID, &d.IdentifiedBy, &d.IdentifiedAt, &d.SoldAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefectiveProduct{}, ErrNotFound
		}
		return DefectiveProduct{}, err
	}
	d.Status = DefectStatus(status)
	if description != nil {
		d.Description = *description
	}
	return d, nil
}

// InsertDefectiveProduct stores a defect record.
func (r *BarcodeQueries) InsertDefectiveProduct(ctx context.Context, d DefectiveProduct) (DefectiveProduct, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO defective_products
		(barcode_id, product_id, batch_id, store_id, defect_type, description, original_cost, minimum_price,
		 status, identified_by, identified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		d.BarcodeID, d.ProductID, d.BatchID, d.StoreID, d.DefectType, d.Description, d.OriginalCost, d.MinimumPrice,
		string(d.Status), db.NullInt(d.IdentifiedBy), d.IdentifiedAt,
	).Scan(&d.ID)
	if err != nil {
		return DefectiveProduct{}, fmt.Errorf("insert defective product: %w", err)
	}
	return d, nil
}

// GetDefectiveProductForUpdate loads and row-locks a defect record.
func (r *BarcodeQueries) GetDefectiveProductForUpdate(ctx context.Context, id int64) (DefectiveProduct, error) {
	return scanDefect(r.q.QueryRow(ctx, `SELECT `+defectColumns+` FROM defective_products WHERE id = $1 FOR UPDATE`, id))
}

// UpdateDefectiveProduct persists the disposition of a defect record.
func (r *BarcodeQueries) UpdateDefectiveProduct(ctx context.Context, d DefectiveProduct) error {
	tag, err := r.q.Exec(ctx, `UPDATE defective_products SET status = $2, sold_price = $3, sold_order_id = $4,
		sold_at = $5 WHERE id = $1`, d.ID, string(d.Status), d.SoldPrice, d.SoldOrderID, d.SoldAt)
	if err != nil {
		return fmt.Errorf("update defective product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Repository provides PostgreSQL backed persistence for unit workflows.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*BarcodeQueries
	*batch.BatchQueries
	*movement.MovementQueries
	*masterinventory.InventoryQueries
	idempotency *shared.IdempotencyStore
}

// ClaimIdempotencyKey records key inside the transaction so a duplicate call fails.
func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	return t.idempotency.CheckAndInsert(ctx, key, module)
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			BarcodeQueries:   NewBarcodeQueries(tx),
			BatchQueries:     batch.NewBatchQueries(tx),
			MovementQueries:  movement.NewMovementQueries(tx),
			InventoryQueries: masterinventory.NewInventoryQueries(tx),
			idempotency:      shared.NewIdempotencyStore(tx),
		})
	})
}
