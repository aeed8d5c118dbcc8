package barcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/barcode/shipment"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const idempotencyModule = "barcode"

// TxRepository exposes transactional operations.
type TxRepository interface {
	masterinventory.SyncStore
	movement.Writer
	movement.Reader

	GetBarcodeUnit(ctx context.Context, id int64) (Unit, error)
	GetBarcodeUnitForUpdate(ctx context.Context, id int64) (Unit, error)
	GetBarcodeUnitByCode(ctx context.Context, code string) (Unit, error)
	UpdateBarcodeUnit(ctx context.Context, u Unit) error
	ClearPrimaryBarcode(ctx context.Context, productID int64) error

	GetBatch(ctx context.Context, id int64) (batch.Batch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error)
	UpdateBatchStock(ctx context.Context, b batch.Batch) error
	SetBatchPrimaryBarcode(ctx context.Context, batchID, barcodeID int64) error

	InsertDefectiveProduct(ctx context.Context, d DefectiveProduct) (DefectiveProduct, error)
	GetDefectiveProductForUpdate(ctx context.Context, id int64) (DefectiveProduct, error)
	UpdateDefectiveProduct(ctx context.Context, d DefectiveProduct) error

	ClaimIdempotencyKey(ctx context.Context, key, module string) error
}

// RepositoryPort describes repository behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service orchestrates unit lifecycle changes.
type Service struct {
	repo      RepositoryPort
	inventory masterinventory.Invalidator
	tracker   shipment.Tracker
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService constructs the unit service. inventory and tracker may be nil.
func NewService(repo RepositoryPort, inventory masterinventory.Invalidator, tracker shipment.Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inventory,
		tracker:   tracker,
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

// LocationInput describes a location change.
type LocationInput struct {
	BarcodeID    int64
	StoreID      *int64
	Status       Status
	Metadata     LocationMetadata
	SkipMovement bool
	Reference    movement.Reference
	Notes        string
	Actor        int64
}

// UpdateLocation moves a unit to a store and status, merging metadata and, unless
// suppressed, recording the derived movement in the same transaction. Sales and defects
// go through MarkSold and MarkAsDefective. Disposing of an active unit or returning it to
// the vendor deactivates it and withdraws it from its batch.
func (s *Service) UpdateLocation(ctx context.Context, in LocationInput) (Unit, error) {
	if !in.Status.IsValid() {
		return Unit{}, ErrInvalidStatus
	}
	if in.Status.isWorkflowOnly() {
		return Unit{}, fmt.Errorf("status %s: %w", in.Status, ErrWorkflowStatus)
	}
	var out Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, in.BarcodeID)
		if err != nil {
			return err
		}
		if !unit.CanMoveTo(in.Status) {
			return fmt.Errorf("unit %s: %w", unit.Code, ErrInactive)
		}
		out, err = s.relocate(ctx, tx, unit, in)
		return err
	})
	if err != nil {
		return Unit{}, err
	}
	s.invalidate(ctx, out.ProductID)
	return out, nil
}

// relocate applies a location change to a locked unit.
func (s *Service) relocate(ctx context.Context, tx TxRepository, unit Unit, in LocationInput) (Unit, error) {
	now := s.clock()
	before := unit
	writeOff := unit.IsActive && in.Status.isWriteOff()
	if writeOff {
		if err := s.withdrawFromBatch(ctx, tx, unit); err != nil {
			return Unit{}, err
		}
		unit.IsActive = false
	}
	if in.StoreID != nil {
		unit.CurrentStoreID = in.StoreID
	}
	unit.CurrentStatus = in.Status
	unit.LocationUpdatedAt = &now
	unit.Location = unit.Location.Merge(in.Metadata)
	if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
		return Unit{}, err
	}

	if !in.SkipMovement {
		if err := s.recordUnitMovement(ctx, tx, before, unit, MovementTypeFor(in.Status), in.Reference, in.Actor, in.Notes, nil); err != nil {
			return Unit{}, err
		}
	}
	if writeOff || unit.IsDefective || before.CurrentStatus.isCommitted() != unit.CurrentStatus.isCommitted() {
		if _, err := masterinventory.Sync(ctx, tx, unit.ProductID, now); err != nil {
			return Unit{}, err
		}
	}
	return unit, nil
}

func (s *Service) recordUnitMovement(ctx context.Context, tx TxRepository, before, after Unit, t movement.Type, ref movement.Reference, actor int64, notes string, unitPrice *decimal.Decimal) error {
	in := movement.Input{
		BatchID:      after.BatchID,
		BarcodeID:    &after.ID,
		FromStoreID:  before.CurrentStoreID,
		ToStoreID:    after.CurrentStoreID,
		Type:         t,
		Quantity:     1,
		StatusBefore: string(before.CurrentStatus),
		StatusAfter:  string(after.CurrentStatus),
		Reference:    ref,
		PerformedBy:  actor,
		Notes:        notes,
	}
	if after.BatchID != nil {
		b, err := tx.GetBatch(ctx, *after.BatchID)
		if err != nil {
			return fmt.Errorf("load batch for movement: %w", err)
		}
		in.UnitCost = b.CostPrice
		in.UnitPrice = b.SellPrice
	}
	if unitPrice != nil {
		in.UnitPrice = *unitPrice
	}
	_, err := movement.Record(ctx, tx, in, s.clock())
	return err
}

// MoveToWarehouse places a unit in a warehouse store.
func (s *Service) MoveToWarehouse(ctx context.Context, barcodeID, storeID, actor int64) (Unit, error) {
	return s.UpdateLocation(ctx, LocationInput{BarcodeID: barcodeID, StoreID: &storeID, Status: StatusInWarehouse, Actor: actor})
}

// MoveToShop places a unit in a shop store.
func (s *Service) MoveToShop(ctx context.Context, barcodeID, storeID, actor int64) (Unit, error) {
	return s.UpdateLocation(ctx, LocationInput{BarcodeID: barcodeID, StoreID: &storeID, Status: StatusInShop, Actor: actor})
}

// PlaceOnDisplay puts a unit on a shelf at its current store.
func (s *Service) PlaceOnDisplay(ctx context.Context, barcodeID int64, shelf string, actor int64) (Unit, error) {
	return s.UpdateLocation(ctx, LocationInput{
		BarcodeID: barcodeID,
		Status:    StatusOnDisplay,
		Metadata:  LocationMetadata{Shelf: shelf},
		Actor:     actor,
	})
}

// MarkInTransit records a unit leaving on a dispatch.
func (s *Service) MarkInTransit(ctx context.Context, barcodeID, dispatchID, actor int64) (Unit, error) {
	in := LocationInput{BarcodeID: barcodeID, Status: StatusInTransit, Actor: actor}
	if dispatchID > 0 {
		in.Metadata.DispatchID = dispatchID
		in.Reference = movement.DispatchRef(dispatchID)
	}
	return s.UpdateLocation(ctx, in)
}

// MarkInShipment hands a unit to a carrier shipment.
func (s *Service) MarkInShipment(ctx context.Context, barcodeID, shipmentID int64, trackingNumber string, actor int64) (Unit, error) {
	in := LocationInput{
		BarcodeID: barcodeID,
		Status:    StatusInShipment,
		Metadata:  LocationMetadata{ShipmentID: shipmentID, TrackingNumber: trackingNumber},
		Actor:     actor,
	}
	if shipmentID > 0 {
		in.Reference = movement.ShipmentRef(shipmentID)
	}
	return s.UpdateLocation(ctx, in)
}

// SaleInput describes a completed sale of one unit.
type SaleInput struct {
	BarcodeID  int64
	OrderID    int64
	CustomerID int64
	Actor      int64
}

// MarkSold hands the unit to the customer, deactivates it, withdraws one unit from its
// batch and resyncs the product. Units already in a carrier shipment may be sold. A
// repeated call for the same order is rejected.
func (s *Service) MarkSold(ctx context.Context, in SaleInput) (Unit, error) {
	if in.OrderID <= 0 {
		return Unit{}, fmt.Errorf("barcode: order required: %w", shared.ErrValidation)
	}
	var out Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotencyKey(ctx, fmt.Sprintf("sale:%d:%d", in.BarcodeID, in.OrderID), idempotencyModule); err != nil {
			return err
		}
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, in.BarcodeID)
		if err != nil {
			return err
		}
		if !unit.CanBeSold() {
			return fmt.Errorf("unit %s is %s: %w", unit.Code, unit.CurrentStatus, ErrNotAvailable)
		}
		if err := s.withdrawFromBatch(ctx, tx, unit); err != nil {
			return err
		}

		now := s.clock()
		before := unit
		unit.IsActive = false
		unit.CurrentStatus = StatusWithCustomer
		unit.LocationUpdatedAt = &now
		unit.Location = unit.Location.Merge(LocationMetadata{
			OrderID:    in.OrderID,
			CustomerID: in.CustomerID,
			SoldAt:     now.Format(time.RFC3339),
		})
		if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
			return err
		}
		if err := s.recordUnitMovement(ctx, tx, before, unit, movement.TypeSale, movement.OrderRef(in.OrderID), in.Actor, "", nil); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, unit.ProductID, now); err != nil {
			return err
		}
		out = unit
		return nil
	})
	if err != nil {
		return Unit{}, err
	}
	s.invalidate(ctx, out.ProductID)
	return out, nil
}

func (s *Service) withdrawFromBatch(ctx context.Context, tx TxRepository, unit Unit) error {
	if unit.BatchID == nil {
		return nil
	}
	b, err := tx.GetBatchForUpdate(ctx, *unit.BatchID)
	if err != nil {
		return err
	}
	if err := b.Withdraw(1); err != nil {
		return err
	}
	return tx.UpdateBatchStock(ctx, b)
}

// ReturnInput describes a customer return of one unit.
type ReturnInput struct {
	BarcodeID int64
	ReturnID  int64
	Reason    string
	StoreID   *int64
	Actor     int64
}

// MarkReturned reactivates a sold unit as in_return and puts it back into its batch. A
// defective unit comes back inactive as defective and its batch is left alone.
func (s *Service) MarkReturned(ctx context.Context, in ReturnInput) (Unit, error) {
	if in.ReturnID <= 0 {
		return Unit{}, fmt.Errorf("barcode: return required: %w", shared.ErrValidation)
	}
	var out Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotencyKey(ctx, fmt.Sprintf("return:%d:%d", in.BarcodeID, in.ReturnID), idempotencyModule); err != nil {
			return err
		}
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, in.BarcodeID)
		if err != nil {
			return err
		}
		if unit.CurrentStatus != StatusWithCustomer && unit.CurrentStatus != StatusInShipment {
			return fmt.Errorf("unit %s is %s: %w", unit.Code, unit.CurrentStatus, ErrNotReturnable)
		}
		// In-shipment units were never withdrawn from their batch. Defective units left it
		// when they were marked and come back as damaged stock.
		if unit.BatchID != nil && unit.CurrentStatus == StatusWithCustomer && !unit.IsDefective {
			b, err := tx.GetBatchForUpdate(ctx, *unit.BatchID)
			if err != nil {
				return err
			}
			if err := b.AddStock(1); err != nil {
				return err
			}
			if err := tx.UpdateBatchStock(ctx, b); err != nil {
				return err
			}
		}

		now := s.clock()
		before := unit
		unit.IsActive = !unit.IsDefective
		unit.CurrentStatus = StatusInReturn
		if unit.IsDefective {
			unit.CurrentStatus = StatusDefective
		}
		unit.LocationUpdatedAt = &now
		if in.StoreID != nil {
			unit.CurrentStoreID = in.StoreID
		}
		unit.Location = unit.Location.Merge(LocationMetadata{ReturnID: in.ReturnID, ReturnReason: in.Reason})
		if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
			return err
		}
		if err := s.recordUnitMovement(ctx, tx, before, unit, movement.TypeReturn, movement.ReturnRef(in.ReturnID), in.Actor, in.Reason, nil); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, unit.ProductID, now); err != nil {
			return err
		}
		out = unit
		return nil
	})
	if err != nil {
		return Unit{}, err
	}
	s.invalidate(ctx, out.ProductID)
	return out, nil
}

// DefectInput describes a unit found defective.
type DefectInput struct {
	BarcodeID    int64
	DefectType   string
	Description  string
	MinimumPrice decimal.Decimal
	Actor        int64
}

// MarkAsDefective pulls a unit from sellable stock: it records the defect, deactivates the
// unit, withdraws it from its batch, records a defective movement and resyncs.
func (s *Service) MarkAsDefective(ctx context.Context, in DefectInput) (DefectiveProduct, error) {
	if in.DefectType == "" {
		return DefectiveProduct{}, fmt.Errorf("barcode: defect type required: %w", shared.ErrValidation)
	}
	if in.MinimumPrice.IsNegative() {
		return DefectiveProduct{}, fmt.Errorf("barcode: minimum price must not be negative: %w", shared.ErrValidation)
	}
	var out DefectiveProduct
	var productID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, in.BarcodeID)
		if err != nil {
			return err
		}
		if !unit.CanBeMarkedAsDefective() {
			return fmt.Errorf("unit %s: %w", unit.Code, ErrCannotMarkDefective)
		}
		productID = unit.ProductID

		now := s.clock()
		defect := DefectiveProduct{
			BarcodeID:    unit.ID,
			ProductID:    unit.ProductID,
			BatchID:      unit.BatchID,
			StoreID:      unit.CurrentStoreID,
			DefectType:   in.DefectType,
			Description:  in.Description,
			MinimumPrice: in.MinimumPrice,
			Status:       DefectIdentified,
			IdentifiedBy: in.Actor,
			IdentifiedAt: now,
		}
		if unit.BatchID != nil {
			b, err := tx.GetBatchForUpdate(ctx, *unit.BatchID)
			if err != nil {
				return err
			}
			defect.OriginalCost = b.CostPrice
			if err := b.Withdraw(1); err != nil {
				return err
			}
			if err := tx.UpdateBatchStock(ctx, b); err != nil {
				return err
			}
		}
		defect, err = tx.InsertDefectiveProduct(ctx, defect)
		if err != nil {
			return err
		}

		before := unit
		unit.IsDefective = true
		unit.IsActive = false
		unit.CurrentStatus = StatusDefective
		unit.LocationUpdatedAt = &now
		unit.Location = unit.Location.Merge(LocationMetadata{DefectID: defect.ID})
		if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
			return err
		}
		if err := s.recordUnitMovement(ctx, tx, before, unit, movement.TypeDefective, movement.DefectRef(defect.ID), in.Actor, in.Description, nil); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, unit.ProductID, now); err != nil {
			return err
		}
		out = defect
		return nil
	})
	if err != nil {
		return DefectiveProduct{}, err
	}
	s.invalidate(ctx, productID)
	return out, nil
}

// SellDefectiveInput describes a discounted sale of a defective unit.
type SellDefectiveInput struct {
	DefectID int64
	Price    decimal.Decimal
	OrderID  int64
	Actor    int64
}

// SellDefective sells a defective unit, refusing prices under its minimum.
func (s *Service) SellDefective(ctx context.Context, in SellDefectiveInput) (DefectiveProduct, error) {
	if in.OrderID <= 0 {
		return DefectiveProduct{}, fmt.Errorf("barcode: order required: %w", shared.ErrValidation)
	}
	var out DefectiveProduct
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		defect, err := tx.GetDefectiveProductForUpdate(ctx, in.DefectID)
		if err != nil {
			return err
		}
		if defect.Status != DefectIdentified {
			return fmt.Errorf("defect %d is %s: %w", defect.ID, defect.Status, ErrDefectClosed)
		}
		if in.Price.LessThan(defect.MinimumPrice) {
			return fmt.Errorf("price %s under minimum %s: %w", in.Price, defect.MinimumPrice, ErrBelowMinimumPrice)
		}
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, defect.BarcodeID)
		if err != nil {
			return err
		}

		now := s.clock()
		price := in.Price
		orderID := in.OrderID
		defect.Status = DefectSold
		defect.SoldPrice = &price
		defect.SoldOrderID = &orderID
		defect.SoldAt = &now
		if err := tx.UpdateDefectiveProduct(ctx, defect); err != nil {
			return err
		}

		before := unit
		unit.CurrentStatus = StatusWithCustomer
		unit.LocationUpdatedAt = &now
		unit.Location = unit.Location.Merge(LocationMetadata{OrderID: in.OrderID, SoldAt: now.Format(time.RFC3339)})
		if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
			return err
		}
		if err := s.recordUnitMovement(ctx, tx, before, unit, movement.TypeSale, movement.OrderRef(in.OrderID), in.Actor, "defective sale", &price); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, unit.ProductID, now); err != nil {
			return err
		}
		out = defect
		return nil
	})
	if err != nil {
		return DefectiveProduct{}, err
	}
	s.invalidate(ctx, out.ProductID)
	return out, nil
}

// SetPrimary makes a unit the single primary barcode of its product.
func (s *Service) SetPrimary(ctx context.Context, barcodeID int64) (Unit, error) {
	var out Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetBarcodeUnitForUpdate(ctx, barcodeID)
		if err != nil {
			return err
		}
		if err := tx.ClearPrimaryBarcode(ctx, unit.ProductID); err != nil {
			return err
		}
		unit.IsPrimary = true
		if err := tx.UpdateBarcodeUnit(ctx, unit); err != nil {
			return err
		}
		if unit.BatchID != nil {
			if err := tx.SetBatchPrimaryBarcode(ctx, *unit.BatchID, unit.ID); err != nil {
				return err
			}
		}
		out = unit
		return nil
	})
	return out, err
}

// ScanResult is the read-side view of a scanned code. Found is false for unknown codes.
type ScanResult struct {
	Found            bool                `json:"found"`
	Code             string              `json:"barcode"`
	Unit             *Unit               `json:"unit,omitempty"`
	ProductID        int64               `json:"product_id,omitempty"`
	CurrentStoreID   *int64              `json:"current_store_id,omitempty"`
	Batch            *batch.Batch        `json:"batch,omitempty"`
	LastMovement     *movement.Movement  `json:"last_movement,omitempty"`
	History          []movement.Movement `json:"history,omitempty"`
	AvailableForSale bool                `json:"available_for_sale"`
}

// Scan resolves a code to its unit, batch, last movement and history. Unknown codes are
// reported with Found=false and a nil error.
func (s *Service) Scan(ctx context.Context, code string) (ScanResult, error) {
	result := ScanResult{Code: code}
	if code == "" {
		return result, nil
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetBarcodeUnitByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		result.Found = true
		result.Unit = &unit
		result.ProductID = unit.ProductID
		result.CurrentStoreID = unit.CurrentStoreID
		result.AvailableForSale = unit.IsAvailableForSale()

		if unit.BatchID != nil {
			b, err := tx.GetBatch(ctx, *unit.BatchID)
			if err != nil && !errors.Is(err, batch.ErrNotFound) {
				return err
			}
			if err == nil {
				result.Batch = &b
			}
		}
		history, err := tx.ListMovements(ctx, movement.Filter{BarcodeID: unit.ID})
		if err != nil {
			return err
		}
		result.History = history
		if len(history) > 0 {
			last := history[0]
			result.LastMovement = &last
		}
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}
	return result, nil
}

// ShipmentInfo reports a unit's shipment linkage.
type ShipmentInfo struct {
	BarcodeID      int64            `json:"barcode_id"`
	InShipment     bool             `json:"in_shipment"`
	ShipmentID     int64            `json:"shipment_id,omitempty"`
	TrackingNumber string           `json:"tracking_number,omitempty"`
	Carrier        *shipment.Status `json:"carrier,omitempty"`
}

// ShipmentStatus reads shipment details from the unit and, when a tracker is configured,
// the carrier's view of the tracking number. Carrier failures are logged, not returned.
func (s *Service) ShipmentStatus(ctx context.Context, barcodeID int64) (ShipmentInfo, error) {
	var unit Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = tx.GetBarcodeUnit(ctx, barcodeID)
		return err
	})
	if err != nil {
		return ShipmentInfo{}, err
	}
	info := ShipmentInfo{
		BarcodeID:      unit.ID,
		InShipment:     unit.CurrentStatus == StatusInShipment,
		ShipmentID:     unit.Location.ShipmentID,
		TrackingNumber: unit.Location.TrackingNumber,
	}
	if s.tracker != nil && info.TrackingNumber != "" {
		status, err := s.tracker.Track(ctx, info.TrackingNumber)
		if err != nil {
			s.logger.Warn("track shipment", slog.Int64("barcode_id", barcodeID), slog.String("tracking_number", info.TrackingNumber), slog.Any("error", err))
		} else {
			info.Carrier = &status
		}
	}
	return info, nil
}

func (s *Service) invalidate(ctx context.Context, productIDs ...int64) {
	if s.inventory != nil {
		s.inventory.Invalidate(ctx, productIDs...)
	}
}
