package rebalancing

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

// RequestQueries persists rebalancing requests.
type RequestQueries struct {
	q db.DBTX
}

// NewRequestQueries binds queries to a pool or transaction.
func NewRequestQueries(q db.DBTX) *RequestQueries {
	return &RequestQueries{q: q}
}

const requestColumns = `id, product_id, source_batch_id, source_store_id, destination_store_id, destination_batch_id,
	quantity, status, priority, reason, dispatch_id, actual_cost, requested_by, requested_at, approved_by, approved_at,
	transit_started_at, completed_by, completed_at, cancelled_by, cancelled_at, cancellation_reason,
	created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req              Request
		status, priority string
		reason, cancel   *string
	)
	err := row.Scan(&req.ID, &req.ProductID, &req.SourceBatchID, &req.SourceStoreID, &req.DestinationStoreID,
		&req.DestinationBatchID, &req.Quantity, &status, &priority, &reason, &req.DispatchID, &req.ActualCost,
		&req.RequestedBy, &req.RequestedAt, &req.ApprovedBy, &req.ApprovedAt, &req.TransitStartedAt,
		&req.CompletedBy, &req.CompletedAt, &req.CancelledBy, &req.CancelledAt, &cancel,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.Status = Status(status)
	req.Priority = Priority(priority)
	if reason != nil {
		req.Reason = *reason
	}
	if cancel != nil {
		req.CancellationReason = *cancel
	}
	return req, nil
}

// InsertRebalancingRequest stores a new request.
func (r *RequestQueries) InsertRebalancingRequest(ctx context.Context, req Request) (Request, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO rebalancing_requests
		(product_id, source_batch_id, source_store_id, destination_store_id, quantity, status, priority, reason,
		 requested_by, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		req.ProductID, req.SourceBatchID, req.SourceStoreID, req.DestinationStoreID, req.Quantity,
		string(req.Status), string(req.Priority), req.Reason, db.NullInt(req.RequestedBy), req.RequestedAt,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("insert rebalancing request: %w", err)
	}
	return req, nil
}

// GetRebalancingRequest loads a request.
func (r *RequestQueries) GetRebalancingRequest(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.q.QueryRow(ctx, `SELECT `+requestColumns+` FROM rebalancing_requests WHERE id = $1`, id))
}

// GetRebalancingRequestForUpdate loads and row-locks a request.
func (r *RequestQueries) GetRebalancingRequestForUpdate(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.q.QueryRow(ctx, `SELECT `+requestColumns+` FROM rebalancing_requests WHERE id = $1 FOR UPDATE`, id))
}

// UpdateRebalancingRequest persists workflow fields.
func (r *RequestQueries) UpdateRebalancingRequest(ctx context.Context, req Request) error {
	tag, err := r.q.Exec(ctx, `UPDATE rebalancing_requests SET status = $2, destination_batch_id = $3,
		dispatch_id = $4, actual_cost = $5, approved_by = $6, approved_at = $7, transit_started_at = $8,
		completed_by = $9, completed_at = $10, cancelled_by = $11, cancelled_at = $12, cancellation_reason = $13,
		updated_at = NOW()
		WHERE id = $1`,
		req.ID, string(req.Status), req.DestinationBatchID, req.DispatchID, req.ActualCost, req.ApprovedBy,
		req.ApprovedAt, req.TransitStartedAt, req.CompletedBy, req.CompletedAt, req.CancelledBy, req.CancelledAt,
		req.CancellationReason)
	if err != nil {
		return fmt.Errorf("update rebalancing request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRebalancingRequests returns requests matching filter, newest first.
func (r *RequestQueries) ListRebalancingRequests(ctx context.Context, filter ListFilter) ([]Request, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OpenOnly {
		conds = append(conds, "status IN ('pending', 'approved', 'in_transit')")
	}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.StoreID != 0 {
		args = append(args, filter.StoreID)
		conds = append(conds, fmt.Sprintf("(source_store_id = $%[1]d OR destination_store_id = $%[1]d)", len(args)))
	}
	sql := `SELECT ` + requestColumns + ` FROM rebalancing_requests`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY requested_at DESC, id DESC"

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list rebalancing requests: %w", err)
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
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
	*RequestQueries
	*batch.BatchQueries
	*movement.MovementQueries
	*masterinventory.InventoryQueries
	*barcode.BarcodeQueries
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			RequestQueries:   NewRequestQueries(tx),
			BatchQueries:     batch.NewBatchQueries(tx),
			MovementQueries:  movement.NewMovementQueries(tx),
			InventoryQueries: masterinventory.NewInventoryQueries(tx),
			BarcodeQueries:   barcode.NewBarcodeQueries(tx),
		})
	})
}
