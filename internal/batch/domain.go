// Package batch models stock cohorts held at a single store.
package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// StoreKind distinguishes warehouses from shops.
type StoreKind string

const (
	StoreKindWarehouse StoreKind = "warehouse"
	StoreKindShop      StoreKind = "shop"
)

// Store is a physical location that holds batches.
type Store struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Kind     StoreKind `json:"kind"`
	IsActive bool      `json:"is_active"`
}

// Batch is a cohort of units sharing cost, price and expiry at one store.
type Batch struct {
	ID               int64           `json:"id"`
	BatchNumber      string          `json:"batch_number"`
	ProductID        int64           `json:"product_id"`
	StoreID          int64           `json:"store_id"`
	Quantity         int             `json:"quantity"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage"`
	BasePrice        decimal.Decimal `json:"base_price"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	Availability     bool            `json:"availability"`
	ManufacturedAt   *time.Time      `json:"manufactured_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	PrimaryBarcodeID *int64          `json:"primary_barcode_id,omitempty"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

var (
	// ErrNotFound indicates the batch or store does not exist.
	ErrNotFound = fmt.Errorf("batch: %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a negative or zero quantity where a positive one is required.
	ErrInvalidQuantity = fmt.Errorf("batch: invalid quantity: %w", shared.ErrValidation)
	// ErrInsufficientQuantity indicates the batch holds fewer units than requested.
	ErrInsufficientQuantity = fmt.Errorf("batch: %w", shared.ErrInsufficientQuantity)

	errDuplicateNumber = fmt.Errorf("batch: %w", shared.ErrConflict)
)

// UpdateQuantity sets the quantity and flips availability with it.
func (b *Batch) UpdateQuantity(n int) error {
	if n < 0 {
		return ErrInvalidQuantity
	}
	b.Quantity = n
	b.Availability = n > 0
	return nil
}

// AddStock increases quantity by n.
func (b *Batch) AddStock(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	return b.UpdateQuantity(b.Quantity + n)
}

// RemoveStock decreases quantity by n, flooring at zero. The returned shortfall is the
// number of requested units the batch could not cover.
func (b *Batch) RemoveStock(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidQuantity
	}
	if n > b.Quantity {
		shortfall := n - b.Quantity
		return shortfall, b.UpdateQuantity(0)
	}
	return 0, b.UpdateQuantity(b.Quantity - n)
}

// Withdraw decreases quantity by n and rejects over-removal.
func (b *Batch) Withdraw(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if n > b.Quantity {
		return fmt.Errorf("batch %s holds %d, requested %d: %w", b.BatchNumber, b.Quantity, n, ErrInsufficientQuantity)
	}
	return b.UpdateQuantity(b.Quantity - n)
}

// EnsureCovers checks the batch holds at least n units without mutating it.
func (b Batch) EnsureCovers(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if n > b.Quantity {
		return fmt.Errorf("batch %s holds %d, requested %d: %w", b.BatchNumber, b.Quantity, n, ErrInsufficientQuantity)
	}
	return nil
}

// IsExpired reports whether the batch expiry is at or before now.
func (b Batch) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// IsAvailable is true when the batch is flagged available, holds stock and has not expired.
func (b Batch) IsAvailable(now time.Time) bool {
	return b.Availability && b.Quantity > 0 && !b.IsExpired(now)
}

// Spawn creates a new batch at storeID holding qty units with this batch's cost, price
// and dating. It is the destination side of store-to-store transfers.
func (b Batch) Spawn(storeID int64, qty int, now time.Time) Batch {
	dst := Batch{
		BatchNumber:    NewBatchNumber(now),
		ProductID:      b.ProductID,
		StoreID:        storeID,
		CostPrice:      b.CostPrice,
		SellPrice:      b.SellPrice,
		TaxPercentage:  b.TaxPercentage,
		BasePrice:      b.BasePrice,
		TaxAmount:      b.TaxAmount,
		ManufacturedAt: b.ManufacturedAt,
		ExpiresAt:      b.ExpiresAt,
		IsActive:       true,
	}
	_ = dst.UpdateQuantity(qty)
	return dst
}

// NewBatchNumber generates BT-YYYYMMDD-XXXXXXXX.
func NewBatchNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("BT-%s-%s", now.Format("20060102"), suffix)
}
