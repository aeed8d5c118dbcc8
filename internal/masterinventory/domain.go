// Package masterinventory maintains the per-product stock aggregate recomputed from batches.
package masterinventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// StockStatus classifies available stock against thresholds.
type StockStatus string

const (
	StatusOutOfStock  StockStatus = "out_of_stock"
	StatusLowStock    StockStatus = "low_stock"
	StatusNormal      StockStatus = "normal"
	StatusOverstocked StockStatus = "overstocked"
)

// Thresholds are the per-product stock levels used for classification.
type Thresholds struct {
	MinimumStockLevel int  `json:"minimum_stock_level"`
	MaximumStockLevel *int `json:"maximum_stock_level,omitempty"`
	ReorderPoint      int  `json:"reorder_point"`
}

// Validate checks threshold consistency.
func (t Thresholds) Validate() error {
	if t.MinimumStockLevel < 0 || t.ReorderPoint < 0 {
		return fmt.Errorf("masterinventory: thresholds must not be negative: %w", shared.ErrValidation)
	}
	if t.MaximumStockLevel != nil && *t.MaximumStockLevel < t.MinimumStockLevel {
		return fmt.Errorf("masterinventory: maximum below minimum: %w", shared.ErrValidation)
	}
	return nil
}

// MasterInventory is the cached aggregate for one product.
type MasterInventory struct {
	ID                int64 `json:"id"`
	ProductID         int64 `json:"product_id"`
	TotalQuantity     int   `json:"total_quantity"`
	AvailableQuantity int   `json:"available_quantity"`
	ReservedQuantity  int   `json:"reserved_quantity"`
	DamagedQuantity   int   `json:"damaged_quantity"`
	Thresholds
	AverageCostPrice decimal.Decimal `json:"average_cost_price"`
	AverageSellPrice decimal.Decimal `json:"average_sell_price"`
	TotalValue       decimal.Decimal `json:"total_value"`
	StockStatus      StockStatus     `json:"stock_status"`
	StoreBreakdown   map[int64]int   `json:"store_breakdown"`
	BatchBreakdown   map[int64]int   `json:"batch_breakdown"`
	LastUpdatedAt    time.Time       `json:"last_updated_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// UnitCounts are barcode-level tallies folded into the aggregate.
type UnitCounts struct {
	Damaged  int
	Reserved int
}

// ErrNotFound indicates no aggregate row exists for the product.
var ErrNotFound = fmt.Errorf("masterinventory: %w", shared.ErrNotFound)

// Classify maps available stock onto a status. Order matters: out of stock, then low, then over.
func Classify(available int, t Thresholds) StockStatus {
	switch {
	case available <= 0:
		return StatusOutOfStock
	case available <= t.MinimumStockLevel:
		return StatusLowStock
	case t.MaximumStockLevel != nil && available > *t.MaximumStockLevel:
		return StatusOverstocked
	default:
		return StatusNormal
	}
}

// Recompute rebuilds every derived field of inv from the product's active batches.
// Thresholds and identity are kept; nothing else from inv survives.
func Recompute(inv MasterInventory, batches []batch.Batch, units UnitCounts, now time.Time) MasterInventory {
	out := MasterInventory{
		ID:               inv.ID,
		ProductID:        inv.ProductID,
		Thresholds:       inv.Thresholds,
		CreatedAt:        inv.CreatedAt,
		ReservedQuantity: units.Reserved,
		DamagedQuantity:  units.Damaged,
		StoreBreakdown:   make(map[int64]int),
		BatchBreakdown:   make(map[int64]int),
		LastUpdatedAt:    now,
	}

	costSum := decimal.Zero
	sellSum := decimal.Zero
	for _, b := range batches {
		if !b.IsActive || b.ProductID != inv.ProductID {
			continue
		}
		out.TotalQuantity += b.Quantity
		if b.IsAvailable(now) {
			out.AvailableQuantity += b.Quantity
		}
		out.StoreBreakdown[b.StoreID] += b.Quantity
		out.BatchBreakdown[b.ID] = b.Quantity

		qty := decimal.NewFromInt(int64(b.Quantity))
		costSum = costSum.Add(qty.Mul(b.CostPrice))
		sellSum = sellSum.Add(qty.Mul(b.SellPrice))
	}

	if out.TotalQuantity > 0 {
		total := decimal.NewFromInt(int64(out.TotalQuantity))
		out.AverageCostPrice = costSum.Div(total).Round(2)
		out.AverageSellPrice = sellSum.Div(total).Round(2)
	}
	out.TotalValue = decimal.NewFromInt(int64(out.AvailableQuantity)).Mul(out.AverageSellPrice)
	out.StockStatus = Classify(out.AvailableQuantity, out.Thresholds)
	return out
}

// NeedsReorder reports whether available stock is at or under the minimum or reorder point.
func (m MasterInventory) NeedsReorder() bool {
	return m.AvailableQuantity <= m.MinimumStockLevel || m.AvailableQuantity <= m.ReorderPoint
}

// ExcessOverMaximum is the number of available units above the maximum level, zero when unset.
func (m MasterInventory) ExcessOverMaximum() int {
	if m.MaximumStockLevel == nil || m.AvailableQuantity <= *m.MaximumStockLevel {
		return 0
	}
	return m.AvailableQuantity - *m.MaximumStockLevel
}

// Imbalance flags a store holding markedly more than the product's per-store mean.
type Imbalance struct {
	StoreID  int64           `json:"store_id"`
	Quantity int             `json:"quantity"`
	Mean     decimal.Decimal `json:"mean"`
	Excess   int             `json:"excess"`
}

var imbalanceFactor = decimal.RequireFromString("1.5")

// StoreImbalances lists stores holding more than 50% above the mean per-store quantity,
// largest excess first.
func StoreImbalances(breakdown map[int64]int) []Imbalance {
	if len(breakdown) < 2 {
		return nil
	}
	sum := 0
	for _, qty := range breakdown {
		sum += qty
	}
	mean := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(breakdown))))
	limit := mean.Mul(imbalanceFactor)

	var out []Imbalance
	for storeID, qty := range breakdown {
		q := decimal.NewFromInt(int64(qty))
		if !q.GreaterThan(limit) {
			continue
		}
		out = append(out, Imbalance{
			StoreID:  storeID,
			Quantity: qty,
			Mean:     mean.Round(2),
			Excess:   int(q.Sub(mean).Floor().IntPart()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Excess == out[j].Excess {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].Excess > out[j].Excess
	})
	return out
}
