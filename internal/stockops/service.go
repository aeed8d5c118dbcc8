// Package stockops books stock into batches: purchase receipts, manual adjustments and repricing.
package stockops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MaxUnitsPerReceipt bounds barcode generation for a single receipt.
const MaxUnitsPerReceipt = 10000

var (
	// ErrInvalidQuantity indicates a receipt or adjustment without units.
	ErrInvalidQuantity = fmt.Errorf("stockops: invalid quantity: %w", shared.ErrValidation)
	// ErrInactiveStore indicates receiving into a closed store.
	ErrInactiveStore = fmt.Errorf("stockops: store inactive: %w", shared.ErrValidation)
	// ErrInactiveBatch indicates adjusting a retired batch.
	ErrInactiveBatch = fmt.Errorf("stockops: batch inactive: %w", shared.ErrInvalidTransition)
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	masterinventory.SyncStore
	movement.Writer
	batch.CategoryTaxReader

	GetStore(ctx context.Context, id int64) (batch.Store, error)
	GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error)
	InsertBatch(ctx context.Context, b batch.Batch) (batch.Batch, error)
	UpdateBatchStock(ctx context.Context, b batch.Batch) error
	UpdateBatchPricing(ctx context.Context, b batch.Batch) error
	SetBatchPrimaryBarcode(ctx context.Context, batchID, barcodeID int64) error

	InsertBarcodeUnit(ctx context.Context, u barcode.Unit) (barcode.Unit, error)
	HasPrimaryBarcode(ctx context.Context, productID int64) (bool, error)
}

// RepositoryPort describes repository behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service books stock changes that originate outside the unit lifecycle.
type Service struct {
	repo      RepositoryPort
	inventory masterinventory.Invalidator
	pricing   batch.PricingConfig
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService constructs the stock operations service.
func NewService(repo RepositoryPort, inventory masterinventory.Invalidator, pricing batch.PricingConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inventory,
		pricing:   pricing,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// ReceiveInput describes goods received against a purchase order.
type ReceiveInput struct {
	ProductID       int64
	StoreID         int64
	Quantity        int
	CostPrice       decimal.Decimal
	SellPrice       decimal.Decimal
	TaxPercentage   decimal.Decimal
	ManufacturedAt  *time.Time
	ExpiresAt       *time.Time
	PurchaseOrderID int64
	Actor           int64
}

// ReceiveResult is the batch and units created by a receipt.
type ReceiveResult struct {
	Batch batch.Batch    `json:"batch"`
	Units []barcode.Unit `json:"units"`
}

// Receive creates a priced batch with one barcode unit per received item. The first unit
// becomes the product's primary barcode when it has none.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error) {
	if in.Quantity <= 0 || in.Quantity > MaxUnitsPerReceipt {
		return ReceiveResult{}, fmt.Errorf("receive %d units: %w", in.Quantity, ErrInvalidQuantity)
	}
	var out ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.clock()
		store, err := tx.GetStore(ctx, in.StoreID)
		if err != nil {
			return err
		}
		if !store.IsActive {
			return ErrInactiveStore
		}

		b := batch.Batch{
			BatchNumber:    batch.NewBatchNumber(now),
			ProductID:      in.ProductID,
			StoreID:        in.StoreID,
			CostPrice:      in.CostPrice,
			SellPrice:      in.SellPrice,
			TaxPercentage:  in.TaxPercentage,
			ManufacturedAt: in.ManufacturedAt,
			ExpiresAt:      in.ExpiresAt,
			IsActive:       true,
		}
		if err := b.UpdateQuantity(in.Quantity); err != nil {
			return err
		}
		if err := batch.Prepare(ctx, tx, s.pricing, &b); err != nil {
			return err
		}
		if b, err = tx.InsertBatch(ctx, b); err != nil {
			return err
		}

		hasPrimary, err := tx.HasPrimaryBarcode(ctx, in.ProductID)
		if err != nil {
			return err
		}
		units := make([]barcode.Unit, 0, in.Quantity)
		status := barcode.InitialStatus(store.Kind)
		for n := 1; n <= in.Quantity; n++ {
			u, err := tx.InsertBarcodeUnit(ctx, barcode.Unit{
				Code:              barcode.CodeFor(b.BatchNumber, n),
				ProductID:         in.ProductID,
				BatchID:           &b.ID,
				IsPrimary:         !hasPrimary && n == 1,
				IsActive:          true,
				CurrentStoreID:    &store.ID,
				CurrentStatus:     status,
				LocationUpdatedAt: &now,
			})
			if err != nil {
				return err
			}
			units = append(units, u)
		}
		if units[0].IsPrimary {
			if err := tx.SetBatchPrimaryBarcode(ctx, b.ID, units[0].ID); err != nil {
				return err
			}
			b.PrimaryBarcodeID = &units[0].ID
		}

		mv := movement.Input{
			BatchID:     &b.ID,
			ToStoreID:   &store.ID,
			Type:        movement.TypeAdjustment,
			Quantity:    in.Quantity,
			UnitCost:    b.CostPrice,
			UnitPrice:   b.SellPrice,
			PerformedBy: in.Actor,
			Notes:       "goods received",
		}
		if in.PurchaseOrderID > 0 {
			mv.Reference = movement.PurchaseOrderRef(in.PurchaseOrderID)
		}
		if _, err := movement.Record(ctx, tx, mv, now); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, in.ProductID, now); err != nil {
			return err
		}
		out = ReceiveResult{Batch: b, Units: units}
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.invalidate(ctx, in.ProductID)
	s.logger.Info("stock received",
		slog.Int64("product_id", in.ProductID), slog.Int64("batch_id", out.Batch.ID),
		slog.Int("quantity", in.Quantity), slog.Int64("purchase_order_id", in.PurchaseOrderID))
	return out, nil
}

// AdjustInput is a signed manual correction of a batch quantity. Clamp floors a removal
// at zero instead of rejecting it, as a physical count does.
type AdjustInput struct {
	BatchID int64
	Delta   int
	Clamp   bool
	Reason  string
	Actor   int64
}

// Adjust applies delta to a batch. Removals beyond the batch quantity are rejected unless
// clamped, in which case the shortfall is logged.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (batch.Batch, error) {
	if in.Delta == 0 {
		return batch.Batch{}, ErrInvalidQuantity
	}
	var (
		out       batch.Batch
		shortfall int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.clock()
		b, err := tx.GetBatchForUpdate(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if !b.IsActive {
			return ErrInactiveBatch
		}
		mv := movement.Input{
			BatchID:     &b.ID,
			Type:        movement.TypeAdjustment,
			UnitCost:    b.CostPrice,
			UnitPrice:   b.SellPrice,
			PerformedBy: in.Actor,
			Notes:       in.Reason,
		}
		if in.Delta > 0 {
			err = b.AddStock(in.Delta)
			mv.Quantity = in.Delta
			mv.ToStoreID = &b.StoreID
		} else if in.Clamp {
			held := b.Quantity
			shortfall, err = b.RemoveStock(-in.Delta)
			mv.Quantity = held - b.Quantity
			mv.FromStoreID = &b.StoreID
		} else {
			err = b.Withdraw(-in.Delta)
			mv.Quantity = -in.Delta
			mv.FromStoreID = &b.StoreID
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateBatchStock(ctx, b); err != nil {
			return err
		}
		// Clamping an empty batch moves nothing.
		if mv.Quantity > 0 {
			if _, err := movement.Record(ctx, tx, mv, now); err != nil {
				return err
			}
		}
		if _, err := masterinventory.Sync(ctx, tx, b.ProductID, now); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return batch.Batch{}, err
	}
	s.invalidate(ctx, out.ProductID)
	if shortfall > 0 {
		s.logger.Warn("adjustment clamped at zero",
			slog.Int64("batch_id", out.ID), slog.Int("requested", -in.Delta), slog.Int("shortfall", shortfall))
	}
	return out, nil
}

// RepriceInput changes a batch's prices. Nil fields keep their current value.
type RepriceInput struct {
	BatchID       int64
	CostPrice     *decimal.Decimal
	SellPrice     *decimal.Decimal
	TaxPercentage *decimal.Decimal
}

// Reprice updates prices, recomputes the tax split and resyncs the product averages.
func (s *Service) Reprice(ctx context.Context, in RepriceInput) (batch.Batch, error) {
	var out batch.Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if in.CostPrice != nil {
			b.CostPrice = *in.CostPrice
		}
		if in.SellPrice != nil {
			b.SellPrice = *in.SellPrice
		}
		if in.TaxPercentage != nil {
			b.TaxPercentage = *in.TaxPercentage
		}
		if err := batch.Prepare(ctx, tx, s.pricing, &b); err != nil {
			return err
		}
		if err := tx.UpdateBatchPricing(ctx, b); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, b.ProductID, s.clock()); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return batch.Batch{}, err
	}
	s.invalidate(ctx, out.ProductID)
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if s.inventory != nil {
		s.inventory.Invalidate(ctx, productID)
	}
}
