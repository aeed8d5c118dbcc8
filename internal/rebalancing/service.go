package rebalancing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	masterinventory.SyncStore
	movement.Writer

	InsertRebalancingRequest(ctx context.Context, req Request) (Request, error)
	GetRebalancingRequest(ctx context.Context, id int64) (Request, error)
	GetRebalancingRequestForUpdate(ctx context.Context, id int64) (Request, error)
	UpdateRebalancingRequest(ctx context.Context, req Request) error
	ListRebalancingRequests(ctx context.Context, filter ListFilter) ([]Request, error)

	GetBatch(ctx context.Context, id int64) (batch.Batch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error)
	InsertBatch(ctx context.Context, b batch.Batch) (batch.Batch, error)
	UpdateBatchStock(ctx context.Context, b batch.Batch) error
	GetStore(ctx context.Context, id int64) (batch.Store, error)
	ListStores(ctx context.Context) ([]batch.Store, error)
	TransferUnits(ctx context.Context, t barcode.Transfer) (int, error)

	ListInventoriesByStatus(ctx context.Context, status masterinventory.StockStatus) ([]masterinventory.MasterInventory, error)
}

// RepositoryPort describes repository behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service drives the rebalancing state machine.
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

// CreateInput describes a new request.
type CreateInput struct {
	SourceBatchID      int64
	DestinationStoreID int64
	Quantity           int
	Priority           Priority
	Reason             string
	Actor              int64
}

// Create opens a pending request after checking the source batch covers the quantity.
func (s *Service) Create(ctx context.Context, in CreateInput) (Request, error) {
	var out Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.create(ctx, tx, in)
		return err
	})
	return out, err
}

func (s *Service) create(ctx context.Context, tx TxRepository, in CreateInput) (Request, error) {
	if in.Quantity <= 0 {
		return Request{}, ErrInvalidQuantity
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !in.Priority.IsValid() {
		return Request{}, ErrInvalidPriority
	}
	src, err := tx.GetBatch(ctx, in.SourceBatchID)
	if err != nil {
		return Request{}, err
	}
	if src.StoreID == in.DestinationStoreID {
		return Request{}, ErrSameStore
	}
	dst, err := tx.GetStore(ctx, in.DestinationStoreID)
	if err != nil {
		return Request{}, err
	}
	if !dst.IsActive {
		return Request{}, ErrInactiveStore
	}
	if err := src.EnsureCovers(in.Quantity); err != nil {
		return Request{}, err
	}
	return tx.InsertRebalancingRequest(ctx, Request{
		ProductID:          src.ProductID,
		SourceBatchID:      src.ID,
		SourceStoreID:      src.StoreID,
		DestinationStoreID: in.DestinationStoreID,
		Quantity:           in.Quantity,
		Status:             StatusPending,
		Priority:           in.Priority,
		Reason:             in.Reason,
		RequestedBy:        in.Actor,
		RequestedAt:        s.clock(),
	})
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, id, actor int64) (Request, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx TxRepository, req *Request) error {
		if !req.Status.CanApprove() {
			return ErrCannotApprove
		}
		now := s.clock()
		req.Status = StatusApproved
		req.ApprovedBy = &actor
		req.ApprovedAt = &now
		return nil
	})
}

// StartTransit moves an approved request to in_transit after re-checking the source batch
// under lock. dispatchID optionally links the carrying dispatch.
func (s *Service) StartTransit(ctx context.Context, id int64, dispatchID *int64) (Request, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx TxRepository, req *Request) error {
		if !req.Status.CanStartTransit() {
			return ErrCannotStartTransit
		}
		src, err := tx.GetBatchForUpdate(ctx, req.SourceBatchID)
		if err != nil {
			return err
		}
		if err := src.EnsureCovers(req.Quantity); err != nil {
			return fmt.Errorf("source batch depleted since request %d: %w", req.ID, err)
		}
		now := s.clock()
		req.Status = StatusInTransit
		req.TransitStartedAt = &now
		if dispatchID != nil {
			req.DispatchID = dispatchID
		}
		return nil
	})
}

// Complete books the transfer: the source batch is decremented, a new batch is created at
// the destination, one transfer movement links them and the product is resynced. Sound
// units of the source batch follow the stock to the new batch.
func (s *Service) Complete(ctx context.Context, id, actor int64, actualCost *decimal.Decimal) (Request, error) {
	var productID int64
	req, err := s.transition(ctx, id, func(ctx context.Context, tx TxRepository, req *Request) error {
		if !req.Status.CanComplete() {
			return ErrCannotComplete
		}
		productID = req.ProductID
		now := s.clock()

		src, err := tx.GetBatchForUpdate(ctx, req.SourceBatchID)
		if err != nil {
			return err
		}
		if err := src.Withdraw(req.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateBatchStock(ctx, src); err != nil {
			return err
		}
		dst, err := tx.InsertBatch(ctx, src.Spawn(req.DestinationStoreID, req.Quantity, now))
		if err != nil {
			return err
		}
		store, err := tx.GetStore(ctx, req.DestinationStoreID)
		if err != nil {
			return err
		}
		if _, err := tx.TransferUnits(ctx, barcode.Transfer{
			FromBatchID: src.ID,
			ToBatchID:   &dst.ID,
			ToStoreID:   &req.DestinationStoreID,
			Status:      barcode.InitialStatus(store.Kind),
			Metadata:    barcode.LocationMetadata{RebalancingID: req.ID},
			Quantity:    req.Quantity,
			At:          now,
		}); err != nil {
			return err
		}

		mv := movement.Input{
			BatchID:        &src.ID,
			RelatedBatchID: &dst.ID,
			FromStoreID:    &req.SourceStoreID,
			ToStoreID:      &req.DestinationStoreID,
			Type:           movement.TypeTransfer,
			Quantity:       req.Quantity,
			UnitCost:       src.CostPrice,
			UnitPrice:      src.SellPrice,
			Reference:      movement.RebalancingRef(req.ID),
			PerformedBy:    actor,
			Notes:          req.Reason,
		}
		if actualCost != nil {
			mv.TotalCost = actualCost
		}
		if _, err := movement.Record(ctx, tx, mv, now); err != nil {
			return err
		}
		if _, err := masterinventory.Sync(ctx, tx, req.ProductID, now); err != nil {
			return err
		}

		req.Status = StatusCompleted
		req.DestinationBatchID = &dst.ID
		req.ActualCost = actualCost
		req.CompletedBy = &actor
		req.CompletedAt = &now
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	if s.inventory != nil {
		s.inventory.Invalidate(ctx, productID)
	}
	s.logger.Info("rebalancing completed", slog.Int64("request_id", req.ID), slog.Int64("product_id", req.ProductID), slog.Int("quantity", req.Quantity))
	return req, nil
}

// Cancel terminates an open request.
func (s *Service) Cancel(ctx context.Context, id, actor int64, reason string) (Request, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx TxRepository, req *Request) error {
		if !req.Status.CanCancel() {
			return ErrCannotCancel
		}
		now := s.clock()
		req.Status = StatusCancelled
		req.CancelledBy = &actor
		req.CancelledAt = &now
		req.CancellationReason = reason
		return nil
	})
}

// transition locks the request, applies fn and persists the result. Guard failures in fn
// abort the transaction before anything is written.
func (s *Service) transition(ctx context.Context, id int64, fn func(context.Context, TxRepository, *Request) error) (Request, error) {
	var out Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRebalancingRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &req); err != nil {
			return err
		}
		if err := tx.UpdateRebalancingRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

// Get loads a request.
func (s *Service) Get(ctx context.Context, id int64) (Request, error) {
	var out Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetRebalancingRequest(ctx, id)
		return err
	})
	return out, err
}

// List returns requests matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	var out []Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListRebalancingRequests(ctx, filter)
		return err
	})
	return out, err
}

// Suggest proposes transfers for every overstocked product.
func (s *Service) Suggest(ctx context.Context) ([]Suggestion, error) {
	var out []Suggestion
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.suggest(ctx, tx)
		return err
	})
	return out, err
}

// suggest moves available minus maximum units out of the stores holding the most stock,
// drawing from their largest available batch, towards the store holding the least.
func (s *Service) suggest(ctx context.Context, tx TxRepository) ([]Suggestion, error) {
	overstocked, err := tx.ListInventoriesByStatus(ctx, masterinventory.StatusOverstocked)
	if err != nil {
		return nil, err
	}
	if len(overstocked) == 0 {
		return nil, nil
	}
	stores, err := tx.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	var out []Suggestion
	for _, inv := range overstocked {
		excess := inv.ExcessOverMaximum()
		if excess <= 0 {
			continue
		}
		batches, err := tx.ListBatchesByProduct(ctx, inv.ProductID, true)
		if err != nil {
			return nil, err
		}

		sources := sourceStores(inv.StoreBreakdown)
		for _, storeID := range sources {
			if excess <= 0 {
				break
			}
			src, ok := largestAvailableBatch(batches, storeID, now)
			if !ok {
				continue
			}
			dest, ok := emptiestStore(stores, inv.StoreBreakdown, storeID)
			if !ok {
				continue
			}
			qty := min(excess, src.Quantity)
			out = append(out, Suggestion{
				ProductID:          inv.ProductID,
				SourceBatchID:      src.ID,
				SourceStoreID:      storeID,
				DestinationStoreID: dest,
				Quantity:           qty,
				Reason:             fmt.Sprintf("overstock: %d available above maximum", inv.ExcessOverMaximum()),
			})
			excess -= qty
		}
	}
	return out, nil
}

// sourceStores orders candidate stores: imbalanced ones first, then the rest by quantity.
func sourceStores(breakdown map[int64]int) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, im := range masterinventory.StoreImbalances(breakdown) {
		ids = append(ids, im.StoreID)
		seen[im.StoreID] = true
	}
	var rest []int64
	for id := range breakdown {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if breakdown[rest[i]] == breakdown[rest[j]] {
			return rest[i] < rest[j]
		}
		return breakdown[rest[i]] > breakdown[rest[j]]
	})
	return append(ids, rest...)
}

func largestAvailableBatch(batches []batch.Batch, storeID int64, now time.Time) (batch.Batch, bool) {
	var (
		best  batch.Batch
		found bool
	)
	for _, b := range batches {
		if b.StoreID != storeID || !b.IsAvailable(now) {
			continue
		}
		if !found || b.Quantity > best.Quantity || (b.Quantity == best.Quantity && b.ID < best.ID) {
			best, found = b, true
		}
	}
	return best, found
}

func emptiestStore(stores []batch.Store, breakdown map[int64]int, exclude int64) (int64, bool) {
	var (
		best    int64
		bestQty int
		found   bool
	)
	for _, st := range stores {
		if st.ID == exclude || !st.IsActive {
			continue
		}
		qty := breakdown[st.ID]
		if !found || qty < bestQty {
			best, bestQty, found = st.ID, qty, true
		}
	}
	return best, found
}

// CreateSuggested opens a pending request for every suggestion that has no open request
// for the same product and source store yet.
func (s *Service) CreateSuggested(ctx context.Context, actor int64) ([]Request, error) {
	var created []Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		suggestions, err := s.suggest(ctx, tx)
		if err != nil {
			return err
		}
		for _, sg := range suggestions {
			open, err := tx.ListRebalancingRequests(ctx, ListFilter{ProductID: sg.ProductID, StoreID: sg.SourceStoreID, OpenOnly: true})
			if err != nil {
				return err
			}
			if hasOpenFrom(open, sg.SourceStoreID) {
				continue
			}
			req, err := s.create(ctx, tx, CreateInput{
				SourceBatchID:      sg.SourceBatchID,
				DestinationStoreID: sg.DestinationStoreID,
				Quantity:           sg.Quantity,
				Priority:           PriorityNormal,
				Reason:             sg.Reason,
				Actor:              actor,
			})
			if err != nil {
				return err
			}
			created = append(created, req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func hasOpenFrom(reqs []Request, storeID int64) bool {
	for _, r := range reqs {
		if r.SourceStoreID == storeID && r.Status.IsOpen() {
			return true
		}
	}
	return false
}
