package movement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Writer appends movements. Implementations must never update or delete rows.
type Writer interface {
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// Reader lists movements.
type Reader interface {
	ListMovements(ctx context.Context, filter Filter) ([]Movement, error)
}

// MovementQueries implements Writer and Reader over any pgx query surface.
type MovementQueries struct {
	q db.DBTX
}

// NewMovementQueries binds queries to a pool or transaction.
func NewMovementQueries(q db.DBTX) *MovementQueries {
	return &MovementQueries{q: q}
}

const movementColumns = `id, batch_id, related_batch_id, barcode_id, from_store_id, to_store_id, movement_type,
	quantity, unit_cost, unit_price, total_cost, total_value, status_before, status_after,
	reference_type, reference_id, performed_by, movement_date, notes, created_at`

// InsertMovement appends a movement row.
func (r *MovementQueries) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var refKind, statusBefore, statusAfter *string
	if !m.Reference.IsZero() {
		kind := string(m.Reference.Kind)
		refKind = &kind
	}
	if m.StatusBefore != "" {
		statusBefore = &m.StatusBefore
	}
	if m.StatusAfter != "" {
		statusAfter = &m.StatusAfter
	}
	err := r.q.QueryRow(ctx, `INSERT INTO product_movements
		(batch_id, related_batch_id, barcode_id, from_store_id, to_store_id, movement_type, quantity,
		 unit_cost, unit_price, total_cost, total_value, status_before, status_after,
		 reference_type, reference_id, performed_by, movement_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id, created_at`,
		m.BatchID, m.RelatedBatchID, m.BarcodeID, m.FromStoreID, m.ToStoreID, string(m.Type), m.Quantity,
		m.UnitCost, m.UnitPrice, m.TotalCost, m.TotalValue, statusBefore, statusAfter,
		refKind, db.NullInt(m.Reference.ID), db.NullInt(m.PerformedBy), m.MovementDate, m.Notes,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}

// ListMovements returns movements matching filter ordered newest first.
func (r *MovementQueries) ListMovements(ctx context.Context, filter Filter) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BatchID != 0 {
		add("(batch_id = $%[1]d OR related_batch_id = $%[1]d)", filter.BatchID)
	}
	if filter.BarcodeID != 0 {
		add("barcode_id = $%d", filter.BarcodeID)
	}
	if filter.StoreID != 0 {
		add("(from_store_id = $%[1]d OR to_store_id = $%[1]d)", filter.StoreID)
	}
	if filter.Type != "" {
		add("movement_type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("movement_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("movement_date <= $%d", filter.To)
	}

	sql := "SELECT " + movementColumns + " FROM product_movements"
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY movement_date DESC, id DESC"
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
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m                         Movement
		movementType              string
		statusBefore, statusAfter *string
		refKind                   *string
		refID, performedBy        *int64
		notes                     *string
	)
	err := row.Scan(&m.ID, &m.BatchID, &m.RelatedBatchID, &m.BarcodeID, &m.FromStoreID, &m.ToStoreID, &movementType,
		&m.Quantity, &m.UnitCost, &m.UnitPrice, &m.TotalCost, &m.TotalValue, &statusBefore, &statusAfter,
		&refKind, &refID, &performedBy, &m.MovementDate, &notes, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrNotFound
		}
		return Movement{}, err
	}
	m.Type = Type(movementType)
	if statusBefore != nil {
		m.StatusBefore = *statusBefore
	}
	if statusAfter != nil {
		m.StatusAfter = *statusAfter
	}
	if refKind != nil && refID != nil {
		m.Reference = Reference{Kind: ReferenceKind(*refKind), ID: *refID}
	}
	if performedBy != nil {
		m.PerformedBy = *performedBy
	}
	if notes != nil {
		m.Notes = *notes
	}
	return m, nil
}
