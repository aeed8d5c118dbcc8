package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	masterinventory.SyncStore
	movement.Writer

	InsertDispatch(ctx context.Context, d Dispatch) (Dispatch, error)
	GetDispatch(ctx context.Context, id int64) (Dispatch, error)
	GetDispatchForUpdate(ctx context.Context, id int64) (Dispatch, error)
	UpdateDispatch(ctx context.Context, d Dispatch) error
	ListDispatches(ctx context.Context, filter ListFilter) ([]Dispatch, error)
	ListDispatchItems(ctx context.Context, dispatchID int64) ([]Item, error)
	InsertDispatchItem(ctx context.Context, it Item) (Item, error)
	UpdateDispatchItem(ctx context.Context, it Item) error
	DeleteDispatchItem(ctx context.Context, dispatchID, itemID int64) error

	GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error)
	InsertBatch(ctx context.Context, b batch.Batch) (batch.Batch, error)
	UpdateBatchStock(ctx context.Context, b batch.Batch) error
	GetStore(ctx context.Context, id int64) (batch.Store, error)
	TransferUnits(ctx context.Context, t barcode.Transfer) (int, error)
}

// RepositoryPort describes repository behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service drives the dispatch state machine.
type Service struct {
	repo      RepositoryPort
	inventory masterinventory.Invalidator
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService constructs the workflow service.
func NewService(repo RepositoryPort, inventory masterinventory.Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inventory,
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

// CreateInput describes a new dispatch header.
type CreateInput struct {
	SourceStoreID        int64
	DestinationStoreID   int64
	Carrier              string
	TrackingNumber       string
	ExpectedDeliveryDate *time.Time
	Notes                string
	Actor                int64
}

// Create opens an empty pending dispatch between two active stores.
func (s *Service) Create(ctx context.Context, in CreateInput) (Dispatch, error) {
	if in.SourceStoreID == in.DestinationStoreID {
		return Dispatch{}, ErrSameStore
	}
	var out Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range []int64{in.SourceStoreID, in.DestinationStoreID} {
			st, err := tx.GetStore(ctx, id)
			if err != nil {
				return err
			}
			if !st.IsActive {
				return fmt.Errorf("store %d: %w", id, ErrInactiveStore)
			}
		}
		d := Dispatch{
			DispatchNumber:       NewDispatchNumber(s.clock()),
			SourceStoreID:        in.SourceStoreID,
			DestinationStoreID:   in.DestinationStoreID,
			Status:               StatusPending,
			Carrier:              in.Carrier,
			TrackingNumber:       in.TrackingNumber,
			ExpectedDeliveryDate: in.ExpectedDeliveryDate,
			Notes:                in.Notes,
			CreatedBy:            in.Actor,
		}
		d.Recalculate()
		var err error
		out, err = tx.InsertDispatch(ctx, d)
		return err
	})
	return out, err
}

// AddItem attaches quantity units of a source-store batch. The batch must cover the quantity
// together with what this dispatch already draws from it.
func (s *Service) AddItem(ctx context.Context, dispatchID, batchID int64, quantity int) (Dispatch, error) {
	if quantity <= 0 {
		return Dispatch{}, ErrInvalidQuantity
	}
	return s.edit(ctx, dispatchID, func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		b, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.StoreID != d.SourceStoreID {
			return fmt.Errorf("batch %d at store %d: %w", b.ID, b.StoreID, ErrWrongStore)
		}
		if err := b.EnsureCovers(d.Allocated(b.ID) + quantity); err != nil {
			return err
		}
		it, err := tx.InsertDispatchItem(ctx, Item{
			DispatchID: d.ID,
			BatchID:    b.ID,
			ProductID:  b.ProductID,
			Quantity:   quantity,
			UnitCost:   b.CostPrice,
			UnitPrice:  b.SellPrice,
			Status:     ItemPending,
		})
		if err != nil {
			return err
		}
		d.Items = append(d.Items, it)
		return nil
	})
}

// RemoveItem drops a line from a pending dispatch.
func (s *Service) RemoveItem(ctx context.Context, dispatchID, itemID int64) (Dispatch, error) {
	return s.edit(ctx, dispatchID, func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		if err := tx.DeleteDispatchItem(ctx, d.ID, itemID); err != nil {
			return err
		}
		kept := d.Items[:0]
		for _, it := range d.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		d.Items = kept
		return nil
	})
}

func (s *Service) edit(ctx context.Context, id int64, fn func(context.Context, TxRepository, *Dispatch) error) (Dispatch, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		if !d.Status.CanEdit() {
			return ErrNotEditable
		}
		if err := fn(ctx, tx, d); err != nil {
			return err
		}
		d.Recalculate()
		return nil
	})
}

// Approve records the approver of a pending dispatch. A dispatch is approved once.
func (s *Service) Approve(ctx context.Context, id, actor int64) (Dispatch, error) {
	return s.transition(ctx, id, func(_ context.Context, _ TxRepository, d *Dispatch) error {
		if d.Status != StatusPending {
			return ErrCannotApprove
		}
		if d.ApprovedBy != nil {
			return ErrAlreadyApproved
		}
		now := s.clock()
		d.ApprovedBy = &actor
		d.ApprovedAt = &now
		return nil
	})
}

// Dispatch ships an approved pending dispatch: it and all its items move to in transit.
func (s *Service) Dispatch(ctx context.Context, id int64) (Dispatch, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		if !d.Status.CanDispatch() {
			return ErrCannotDispatch
		}
		if d.ApprovedBy == nil {
			return ErrNotApproved
		}
		if len(d.Items) == 0 {
			return ErrEmpty
		}
		for i := range d.Items {
			d.Items[i].Status = ItemDispatched
			if err := tx.UpdateDispatchItem(ctx, d.Items[i]); err != nil {
				return err
			}
		}
		now := s.clock()
		d.Status = StatusInTransit
		d.DispatchedAt = &now
		return nil
	})
}

// DeliverInput carries optional per-item receipts keyed by item id. Items without a receipt
// are taken as fully received.
type DeliverInput struct {
	DispatchID int64
	Receipts   map[int64]Receipt
	Actor      int64
}

// Deliver books every item at the destination. Each source batch is re-checked under lock
// and decremented by the shipped quantity. Only the received quantity lands in a new
// destination batch, linked by a dispatch movement. Damaged and missing units are written
// off with their own movements and do not block completion.
func (s *Service) Deliver(ctx context.Context, in DeliverInput) (Dispatch, error) {
	products := make(map[int64]struct{})
	d, err := s.transition(ctx, in.DispatchID, func(ctx context.Context, tx TxRepository, d *Dispatch) error {
		if !d.Status.CanDeliver() {
			return ErrCannotDeliver
		}
		now := s.clock()
		dst, err := tx.GetStore(ctx, d.DestinationStoreID)
		if err != nil {
			return err
		}
		for i := range d.Items {
			it := &d.Items[i]
			var receipt *Receipt
			if r, ok := in.Receipts[it.ID]; ok {
				receipt = &r
			}
			if err := it.Apply(receipt); err != nil {
				return err
			}
			if err := s.deliverItem(ctx, tx, d, it, dst.Kind, in.Actor, now); err != nil {
				return fmt.Errorf("deliver item %d: %w", it.ID, err)
			}
			products[it.ProductID] = struct{}{}
		}
		for productID := range products {
			if _, err := masterinventory.Sync(ctx, tx, productID, now); err != nil {
				return err
			}
		}
		d.Status = StatusDelivered
		d.ActualDeliveryDate = &now
		d.DeliveredBy = &in.Actor
		return nil
	})
	if err != nil {
		return Dispatch{}, err
	}
	if s.inventory != nil {
		ids := make([]int64, 0, len(products))
		for id := range products {
			ids = append(ids, id)
		}
		s.inventory.Invalidate(ctx, ids...)
	}
	for _, it := range d.Items {
		if it.HasDiscrepancy() {
			s.logger.Warn("dispatch item discrepancy",
				slog.Int64("dispatch_id", d.ID), slog.Int64("item_id", it.ID),
				slog.Int("shipped", it.Quantity), slog.Int("received", it.ReceivedQuantity),
				slog.Int("damaged", it.DamagedQuantity), slog.Int("missing", it.MissingQuantity))
		}
	}
	s.logger.Info("dispatch delivered", slog.Int64("dispatch_id", d.ID), slog.String("number", d.DispatchNumber))
	return d, nil
}

func (s *Service) deliverItem(ctx context.Context, tx TxRepository, d *Dispatch, it *Item, kind batch.StoreKind, actor int64, now time.Time) error {
	src, err := tx.GetBatchForUpdate(ctx, it.BatchID)
	if err != nil {
		return err
	}
	if err := src.Withdraw(it.Quantity); err != nil {
		return err
	}
	if err := tx.UpdateBatchStock(ctx, src); err != nil {
		return err
	}
	base := movement.Input{
		BatchID:     &src.ID,
		FromStoreID: &d.SourceStoreID,
		ToStoreID:   &d.DestinationStoreID,
		UnitCost:    it.UnitCost,
		UnitPrice:   it.UnitPrice,
		Reference:   movement.DispatchRef(d.ID),
		PerformedBy: actor,
		Notes:       d.DispatchNumber,
	}
	meta := barcode.LocationMetadata{DispatchID: d.ID}

	if it.ReceivedQuantity > 0 {
		dst, err := tx.InsertBatch(ctx, src.Spawn(d.DestinationStoreID, it.ReceivedQuantity, now))
		if err != nil {
			return err
		}
		in := base
		in.RelatedBatchID = &dst.ID
		in.Type = movement.TypeDispatch
		in.Quantity = it.ReceivedQuantity
		if _, err := movement.Record(ctx, tx, in, now); err != nil {
			return err
		}
		if _, err := tx.TransferUnits(ctx, barcode.Transfer{
			FromBatchID: src.ID,
			ToBatchID:   &dst.ID,
			ToStoreID:   &d.DestinationStoreID,
			Status:      barcode.InitialStatus(kind),
			Metadata:    meta,
			Quantity:    it.ReceivedQuantity,
			At:          now,
		}); err != nil {
			return err
		}
		it.DestinationBatchID = &dst.ID
	}
	if it.DamagedQuantity > 0 {
		in := base
		in.Type = movement.TypeDefective
		in.Quantity = it.DamagedQuantity
		in.Notes = d.DispatchNumber + ": damaged in transit"
		if _, err := movement.Record(ctx, tx, in, now); err != nil {
			return err
		}
		if _, err := tx.TransferUnits(ctx, barcode.Transfer{
			FromBatchID: src.ID,
			ToStoreID:   &d.DestinationStoreID,
			Status:      barcode.StatusDefective,
			Metadata:    meta,
			Quantity:    it.DamagedQuantity,
			At:          now,
		}); err != nil {
			return err
		}
	}
	if it.MissingQuantity > 0 {
		in := base
		in.ToStoreID = nil
		in.Type = movement.TypeAdjustment
		in.Quantity = it.MissingQuantity
		in.Notes = d.DispatchNumber + ": missing on delivery"
		if _, err := movement.Record(ctx, tx, in, now); err != nil {
			return err
		}
		if _, err := tx.TransferUnits(ctx, barcode.Transfer{
			FromBatchID: src.ID,
			Status:      barcode.StatusDisposed,
			Metadata:    meta,
			Quantity:    it.MissingQuantity,
			At:          now,
		}); err != nil {
			return err
		}
	}
	return tx.UpdateDispatchItem(ctx, *it)
}

// Cancel terminates a dispatch that is not delivered or already cancelled.
func (s *Service) Cancel(ctx context.Context, id, actor int64, reason string) (Dispatch, error) {
	return s.transition(ctx, id, func(_ context.Context, _ TxRepository, d *Dispatch) error {
		if !d.Status.CanCancel() {
			return ErrCannotCancel
		}
		now := s.clock()
		d.Status = StatusCancelled
		d.CancelledBy = &actor
		d.CancelledAt = &now
		d.CancellationReason = reason
		return nil
	})
}

// transition locks the dispatch, loads its items, applies fn and persists the header.
func (s *Service) transition(ctx context.Context, id int64, fn func(context.Context, TxRepository, *Dispatch) error) (Dispatch, error) {
	var out Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDispatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Items, err = tx.ListDispatchItems(ctx, d.ID); err != nil {
			return err
		}
		if err := fn(ctx, tx, &d); err != nil {
			return err
		}
		if err := tx.UpdateDispatch(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// Get loads a dispatch with its items.
func (s *Service) Get(ctx context.Context, id int64) (Dispatch, error) {
	var out Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDispatch(ctx, id)
		if err != nil {
			return err
		}
		if d.Items, err = tx.ListDispatchItems(ctx, d.ID); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// List returns dispatch headers matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dispatch, error) {
	var out []Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListDispatches(ctx, filter)
		return err
	})
	return out, err
}
