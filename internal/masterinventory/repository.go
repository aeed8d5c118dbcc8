package masterinventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// InventoryQueries persists master inventory rows.
type InventoryQueries struct {
	q db.DBTX
}

// NewInventoryQueries binds queries to a pool or transaction.
func NewInventoryQueries(q db.DBTX) *InventoryQueries {
	return &InventoryQueries{q: q}
}

const inventoryColumns = `id, product_id, total_quantity, available_quantity, reserved_quantity, damaged_quantity,
	minimum_stock_level, maximum_stock_level, reorder_point, average_cost_price, average_sell_price,
	total_value, stock_status, store_breakdown, batch_breakdown, last_updated_at, created_at`

func scanInventory(row pgx.Row) (MasterInventory, error) {
	var (
		m                    MasterInventory
		status               string
		storeRaw, batchesRaw []byte
	)
	err := row.Scan(&m.ID, &m.ProductID, &m.TotalQuantity, &m.AvailableQuantity, &m.ReservedQuantity, &m.DamagedQuantity,
		&m.MinimumStockLevel, &m.MaximumStockLevel, &m.ReorderPoint, &m.AverageCostPrice, &m.AverageSellPrice,
		&m.TotalValue, &status, &storeRaw, &batchesRaw, &m.LastUpdatedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MasterInventory{}, ErrNotFound
		}
		return MasterInventory{}, err
	}
	m.StockStatus = StockStatus(status)
	if m.StoreBreakdown, err = decodeBreakdown(storeRaw); err != nil {
		return MasterInventory{}, fmt.Errorf("decode store breakdown: %w", err)
	}
	if m.BatchBreakdown, err = decodeBreakdown(batchesRaw); err != nil {
		return MasterInventory{}, fmt.Errorf("decode batch breakdown: %w", err)
	}
	return m, nil
}

func decodeBreakdown(raw []byte) (map[int64]int, error) {
	out := make(map[int64]int)
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMasterInventory loads the aggregate for a product.
func (r *InventoryQueries) GetMasterInventory(ctx context.Context, productID int64) (MasterInventory, error) {
	return scanInventory(r.q.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM master_inventories WHERE product_id = $1`, productID))
}

// GetMasterInventoryForUpdate loads and row-locks the aggregate for a product.
func (r *InventoryQueries) GetMasterInventoryForUpdate(ctx context.Context, productID int64) (MasterInventory, error) {
	return scanInventory(r.q.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM master_inventories WHERE product_id = $1 FOR UPDATE`, productID))
}

// UpsertMasterInventory replaces every aggregate column for the product.
func (r *InventoryQueries) UpsertMasterInventory(ctx context.Context, m MasterInventory) (MasterInventory, error) {
	storeRaw, err := json.Marshal(m.StoreBreakdown)
	if err != nil {
		return MasterInventory{}, err
	}
	batchesRaw, err := json.Marshal(m.BatchBreakdown)
	if err != nil {
		return MasterInventory{}, err
	}
	err = r.q.QueryRow(ctx, `INSERT INTO master_inventories
		(product_id, total_quantity, available_quantity, reserved_quantity, damaged_quantity,
		 minimum_stock_level, maximum_stock_level, reorder_point, average_cost_price, average_sell_price,
		 total_value, stock_status, store_breakdown, batch_breakdown, last_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (product_id) DO UPDATE SET
			total_quantity = EXCLUDED.total_quantity,
			available_quantity = EXCLUDED.available_quantity,
			reserved_quantity = EXCLUDED.reserved_quantity,
			damaged_quantity = EXCLUDED.damaged_quantity,
			minimum_stock_level = EXCLUDED.minimum_stock_level,
			maximum_stock_level = EXCLUDED.maximum_stock_level,
			reorder_point = EXCLUDED.reorder_point,
			average_cost_price = EXCLUDED.average_cost_price,
			average_sell_price = EXCLUDED.average_sell_price,
			total_value = EXCLUDED.total_value,
			stock_status = EXCLUDED.stock_status,
			store_breakdown = EXCLUDED.store_breakdown,
			batch_breakdown = EXCLUDED.batch_breakdown,
			last_updated_at = EXCLUDED.last_updated_at
		RETURNING id, created_at`,
		m.ProductID, m.TotalQuantity, m.AvailableQuantity, m.ReservedQuantity, m.DamagedQuantity,
		m.MinimumStockLevel, m.MaximumStockLevel, m.ReorderPoint, m.AverageCostPrice, m.AverageSellPrice,
		m.TotalValue, string(m.StockStatus), storeRaw, batchesRaw, m.LastUpdatedAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return MasterInventory{}, fmt.Errorf("upsert master inventory: %w", err)
	}
	return m, nil
}

// CountUnitStates tallies held defective units and active units committed to transit or shipment.
func (r *InventoryQueries) CountUnitStates(ctx context.Context, productID int64) (UnitCounts, error) {
	var c UnitCounts
	err := r.q.QueryRow(ctx, `SELECT
			COUNT(*) FILTER (WHERE is_defective AND current_status IN ('defective', 'repair')),
			COUNT(*) FILTER (WHERE is_active AND current_status IN ('in_transit', 'in_shipment'))
		FROM barcode_units WHERE product_id = $1`, productID).Scan(&c.Damaged, &c.Reserved)
	if err != nil {
		return UnitCounts{}, fmt.Errorf("count unit states: %w", err)
	}
	return c, nil
}

// ListLowStockInventories returns aggregates at or under their minimum or reorder point.
func (r *InventoryQueries) ListLowStockInventories(ctx context.Context) ([]MasterInventory, error) {
	return r.list(ctx, `SELECT `+inventoryColumns+` FROM master_inventories
		WHERE available_quantity <= GREATEST(minimum_stock_level, reorder_point)
		ORDER BY available_quantity, product_id`)
}

// ListInventoriesByStatus returns aggregates with the given stock status.
func (r *InventoryQueries) ListInventoriesByStatus(ctx context.Context, status StockStatus) ([]MasterInventory, error) {
	return r.list(ctx, `SELECT `+inventoryColumns+` FROM master_inventories
		WHERE stock_status = $1 ORDER BY product_id`, string(status))
}

func (r *InventoryQueries) list(ctx context.Context, sql string, args ...any) ([]MasterInventory, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list master inventories: %w", err)
	}
	defer rows.Close()
	var out []MasterInventory
	for rows.Next() {
		m, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListStockedProductIDs returns every product with batches or an existing aggregate.
func (r *InventoryQueries) ListStockedProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT product_id FROM product_batches
		UNION SELECT product_id FROM master_inventories
		ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list stocked products: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Repository provides PostgreSQL backed persistence for the aggregator.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*InventoryQueries
	*batch.BatchQueries
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{InventoryQueries: NewInventoryQueries(tx), BatchQueries: batch.NewBatchQueries(tx)})
	})
}
