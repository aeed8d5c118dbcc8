package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// DispatchQueries persists dispatches and their items.
type DispatchQueries struct {
	q db.DBTX
}

// NewDispatchQueries binds queries to a pool or transaction.
func NewDispatchQueries(q db.DBTX) *DispatchQueries {
	return &DispatchQueries{q: q}
}

const dispatchColumns = `id, dispatch_number, source_store_id, destination_store_id, status, carrier, tracking_number,
	expected_delivery_date, actual_delivery_date, total_items, total_quantity, total_cost, total_value, notes,
	created_by, approved_by, approved_at, dispatched_at, delivered_by, cancelled_by, cancelled_at,
	cancellation_reason, created_at, updated_at`

func scanDispatch(row pgx.Row) (Dispatch, error) {
	var (
		d                                  Dispatch
		status                             string
		carrier, tracking, notes, cancelRs *string
	)
	err := row.Scan(&d.ID, &d.DispatchNumber, &d.SourceStoreID, &d.DestinationStoreID, &status, &carrier, &tracking,
		&d.ExpectedDeliveryDate, &d.ActualDeliveryDate, &d.TotalItems, &d.TotalQuantity, &d.TotalCost, &d.TotalValue,
		&notes, &d.CreatedBy, &d.ApprovedBy, &d.ApprovedAt, &d.DispatchedAt, &d.DeliveredBy, &d.CancelledBy,
		&d.CancelledAt, &cancelRs, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispatch{}, ErrNotFound
		}
		return Dispatch{}, err
	}
	d.Status = Status(status)
	d.Carrier = deref(carrier)
	d.TrackingNumber = deref(tracking)
	d.Notes = deref(notes)
	d.CancellationReason = deref(cancelRs)
	return d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// InsertDispatch stores a new dispatch header.
func (r *DispatchQueries) InsertDispatch(ctx context.Context, d Dispatch) (Dispatch, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO dispatches
		(dispatch_number, source_store_id, destination_store_id, status, carrier, tracking_number,
		 expected_delivery_date, total_items, total_quantity, total_cost, total_value, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		d.DispatchNumber, d.SourceStoreID, d.DestinationStoreID, string(d.Status), d.Carrier, d.TrackingNumber,
		d.ExpectedDeliveryDate, d.TotalItems, d.TotalQuantity, d.TotalCost, d.TotalValue, d.Notes,
		db.NullInt(d.CreatedBy),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Dispatch{}, fmt.Errorf("dispatch number %s: %w", d.DispatchNumber, errDuplicateNumber)
		}
		return Dispatch{}, fmt.Errorf("insert dispatch: %w", err)
	}
	return d, nil
}

// GetDispatch loads a dispatch header without items.
func (r *DispatchQueries) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	return scanDispatch(r.q.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = $1`, id))
}

// GetDispatchForUpdate loads and row-locks a dispatch header.
func (r *DispatchQueries) GetDispatchForUpdate(ctx context.Context, id int64) (Dispatch, error) {
	return scanDispatch(r.q.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = $1 FOR UPDATE`, id))
}

// UpdateDispatch persists workflow fields and totals.
func (r *DispatchQueries) UpdateDispatch(ctx context.Context, d Dispatch) error {
	tag, err := r.q.Exec(ctx, `UPDATE dispatches SET status = $2, carrier = $3, tracking_number = $4,
		expected_delivery_date = $5, actual_delivery_date = $6, total_items = $7, total_quantity = $8,
		total_cost = $9, total_value = $10, approved_by = $11, approved_at = $12, dispatched_at = $13,
		delivered_by = $14, cancelled_by = $15, cancelled_at = $16, cancellation_reason = $17, updated_at = NOW()
		WHERE id = $1`,
		d.ID, string(d.Status), d.Carrier, d.TrackingNumber, d.ExpectedDeliveryDate, d.ActualDeliveryDate,
		d.TotalItems, d.TotalQuantity, d.TotalCost, d.TotalValue, d.ApprovedBy, d.ApprovedAt, d.DispatchedAt,
		d.DeliveredBy, d.CancelledBy, d.CancelledAt, d.CancellationReason)
	if err != nil {
		return fmt.Errorf("update dispatch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDispatches returns headers matching filter, newest first.
func (r *DispatchQueries) ListDispatches(ctx context.Context, filter ListFilter) ([]Dispatch, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StoreID != 0 {
		args = append(args, filter.StoreID)
		conds = append(conds, fmt.Sprintf("(source_store_id = $%[1]d OR destination_store_id = $%[1]d)", len(args)))
	}
	sql := `SELECT ` + dispatchColumns + ` FROM dispatches`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()
	var out []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const itemColumns = `id, dispatch_id, batch_id, product_id, quantity, unit_cost, unit_price, status,
	received_quantity, damaged_quantity, missing_quantity, destination_batch_id, notes`

// ListDispatchItems returns a dispatch's items in insertion order.
func (r *DispatchQueries) ListDispatchItems(ctx context.Context, dispatchID int64) ([]Item, error) {
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM dispatch_items WHERE dispatch_id = $1 ORDER BY id`,
		dispatchID)
	if err != nil {
		return nil, fmt.Errorf("list dispatch items: %w", err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var (
			it     Item
			status string
			notes  *string
		)
		if err := rows.Scan(&it.ID, &it.DispatchID, &it.BatchID, &it.ProductID, &it.Quantity, &it.UnitCost,
			&it.UnitPrice, &status, &it.ReceivedQuantity, &it.DamagedQuantity, &it.MissingQuantity,
			&it.DestinationBatchID, &notes); err != nil {
			return nil, err
		}
		it.Status = ItemStatus(status)
		it.Notes = deref(notes)
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertDispatchItem stores a new line.
func (r *DispatchQueries) InsertDispatchItem(ctx context.Context, it Item) (Item, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO dispatch_items
		(dispatch_id, batch_id, product_id, quantity, unit_cost, unit_price, total_cost, total_value, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		it.DispatchID, it.BatchID, it.ProductID, it.Quantity, it.UnitCost, it.UnitPrice, it.TotalCost(),
		it.TotalValue(), string(it.Status),
	).Scan(&it.ID)
	if err != nil {
		return Item{}, fmt.Errorf("insert dispatch item: %w", err)
	}
	return it, nil
}

// UpdateDispatchItem persists item status and receipt.
func (r *DispatchQueries) UpdateDispatchItem(ctx context.Context, it Item) error {
	tag, err := r.q.Exec(ctx, `UPDATE dispatch_items SET status = $2, received_quantity = $3,
		damaged_quantity = $4, missing_quantity = $5, destination_batch_id = $6, notes = $7
		WHERE id = $1`,
		it.ID, string(it.Status), it.ReceivedQuantity, it.DamagedQuantity, it.MissingQuantity,
		it.DestinationBatchID, it.Notes)
	if err != nil {
		return fmt.Errorf("update dispatch item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDispatchItem removes a line from a dispatch.
func (r *DispatchQueries) DeleteDispatchItem(ctx context.Context, dispatchID, itemID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM dispatch_items WHERE id = $1 AND dispatch_id = $2`, itemID, dispatchID)
	if err != nil {
		return fmt.Errorf("delete dispatch item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Repository provides PostgreSQL backed persistence for the workflow.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*DispatchQueries
	*batch.BatchQueries
	*movement.MovementQueries
	*masterinventory.InventoryQueries
	*barcode.BarcodeQueries
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			DispatchQueries:  NewDispatchQueries(tx),
			BatchQueries:     batch.NewBatchQueries(tx),
			MovementQueries:  movement.NewMovementQueries(tx),
			InventoryQueries: masterinventory.NewInventoryQueries(tx),
			BarcodeQueries:   barcode.NewBarcodeQueries(tx),
		})
	})
}
