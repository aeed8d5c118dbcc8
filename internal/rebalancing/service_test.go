package rebalancing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/memstore"
)

type memRepo struct{ store *memstore.Store }

func (r memRepo) WithTx(ctx context.Context, fn func(context.Context, rebalancing.TxRepository) error) error {
	return r.store.Atomically(ctx, func(ctx context.Context, tx *memstore.Tx) error { return fn(ctx, tx) })
}

type recordingInvalidator struct{ ids []int64 }

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...int64) {
	r.ids = append(r.ids, ids...)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memstore.Store
	inv     *recordingInvalidator
	svc     *rebalancing.Service
	shop    int64
	depot   int64
	closed  int64
	product int64
	source  batch.Batch
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	s.store = memstore.New()
	s.shop = s.store.AddStore("shop", batch.StoreKindShop, true)
	s.depot = s.store.AddStore("depot", batch.StoreKindWarehouse, true)
	s.closed = s.store.AddStore("closed", batch.StoreKindShop, false)
	s.product = s.store.AddProduct(nil)
	s.source = s.addBatch(s.shop, 10)

	s.inv = &recordingInvalidator{}
	s.svc = rebalancing.NewService(memRepo{store: s.store}, s.inv, nil)
	s.svc.WithClock(func() time.Time { return s.now })
}

func (s *ServiceSuite) addBatch(storeID int64, qty int) batch.Batch {
	b := batch.Batch{
		ProductID: s.product,
		StoreID:   storeID,
		CostPrice: decimal.NewFromInt(8),
		SellPrice: decimal.NewFromInt(12),
		IsActive:  true,
	}
	s.Require().NoError(b.UpdateQuantity(qty))
	return s.store.AddBatch(b)
}

func (s *ServiceSuite) sync() {
	s.Require().NoError(s.store.Atomically(s.ctx, func(ctx context.Context, tx *memstore.Tx) error {
		_, err := masterinventory.Sync(ctx, tx, s.product, s.now)
		return err
	}))
}

func (s *ServiceSuite) create(qty int) rebalancing.Request {
	req, err := s.svc.Create(s.ctx, rebalancing.CreateInput{
		SourceBatchID:      s.source.ID,
		DestinationStoreID: s.depot,
		Quantity:           qty,
		Reason:             "balance",
		Actor:              1,
	})
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) TestCreateValidatesRequest() {
	req := s.create(4)
	s.Equal(rebalancing.StatusPending, req.Status)
	s.Equal(rebalancing.PriorityNormal, req.Priority)
	s.Equal(s.shop, req.SourceStoreID)
	s.Equal(s.product, req.ProductID)

	cases := []struct {
		name string
		in   rebalancing.CreateInput
		err  error
	}{
		{"same store", rebalancing.CreateInput{SourceBatchID: s.source.ID, DestinationStoreID: s.shop, Quantity: 1}, rebalancing.ErrSameStore},
		{"inactive destination", rebalancing.CreateInput{SourceBatchID: s.source.ID, DestinationStoreID: s.closed, Quantity: 1}, rebalancing.ErrInactiveStore},
		{"zero quantity", rebalancing.CreateInput{SourceBatchID: s.source.ID, DestinationStoreID: s.depot}, rebalancing.ErrInvalidQuantity},
		{"unknown priority", rebalancing.CreateInput{SourceBatchID: s.source.ID, DestinationStoreID: s.depot, Quantity: 1, Priority: "asap"}, rebalancing.ErrInvalidPriority},
		{"more than batch holds", rebalancing.CreateInput{SourceBatchID: s.source.ID, DestinationStoreID: s.depot, Quantity: 11}, shared.ErrInsufficientQuantity},
		{"unknown batch", rebalancing.CreateInput{SourceBatchID: 9999, DestinationStoreID: s.depot, Quantity: 1}, shared.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := s.svc.Create(s.ctx, tc.in)
		s.ErrorIs(err, tc.err, tc.name)
	}
}

func (s *ServiceSuite) TestCompleteMovesUnitsWithStock() {
	var units []barcode.Unit
	for n := 1; n <= 5; n++ {
		status := barcode.StatusInShop
		if n == 1 {
			status = barcode.StatusInShipment
		}
		units = append(units, s.store.AddUnit(barcode.Unit{
			Code:           barcode.CodeFor(s.source.BatchNumber, n),
			ProductID:      s.product,
			BatchID:        &s.source.ID,
			IsActive:       true,
			CurrentStoreID: &s.shop,
			CurrentStatus:  status,
		}))
	}
	req := s.create(3)
	_, err := s.svc.Approve(s.ctx, req.ID, 2)
	s.Require().NoError(err)
	_, err = s.svc.StartTransit(s.ctx, req.ID, nil)
	s.Require().NoError(err)
	req, err = s.svc.Complete(s.ctx, req.ID, 3, nil)
	s.Require().NoError(err)
	s.Require().NotNil(req.DestinationBatchID)

	for i, u := range units {
		got, ok := s.store.Unit(u.ID)
		s.Require().True(ok)
		if i == 0 || i == 4 {
			s.Equal(s.source.ID, *got.BatchID)
			s.Equal(s.shop, *got.CurrentStoreID)
			s.Equal(u.CurrentStatus, got.CurrentStatus)
			continue
		}
		s.Equal(*req.DestinationBatchID, *got.BatchID)
		s.Equal(s.depot, *got.CurrentStoreID)
		s.Equal(barcode.StatusInWarehouse, got.CurrentStatus)
		s.Equal(req.ID, got.Location.RebalancingID)
		s.True(got.IsActive)
	}
	s.Len(s.store.Movements(), 1)
}

func (s *ServiceSuite) TestLifecycleConservesStock() {
	s.sync()
	req := s.create(4)

	_, err := s.svc.Complete(s.ctx, req.ID, 2, nil)
	s.ErrorIs(err, rebalancing.ErrCannotComplete)
	_, err = s.svc.StartTransit(s.ctx, req.ID, nil)
	s.ErrorIs(err, rebalancing.ErrCannotStartTransit)

	req, err = s.svc.Approve(s.ctx, req.ID, 2)
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusApproved, req.Status)
	_, err = s.svc.Approve(s.ctx, req.ID, 2)
	s.ErrorIs(err, rebalancing.ErrCannotApprove)

	dispatchID := int64(77)
	req, err = s.svc.StartTransit(s.ctx, req.ID, &dispatchID)
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusInTransit, req.Status)
	s.Equal(&dispatchID, req.DispatchID)

	cost := decimal.NewFromInt(25)
	req, err = s.svc.Complete(s.ctx, req.ID, 3, &cost)
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusCompleted, req.Status)
	s.Require().NotNil(req.DestinationBatchID)

	src, _ := s.store.Batch(s.source.ID)
	s.Equal(6, src.Quantity)
	dst := s.store.BatchesAt(s.product, s.depot)
	s.Require().Len(dst, 1)
	s.Equal(*req.DestinationBatchID, dst[0].ID)
	s.Equal(4, dst[0].Quantity)
	s.True(dst[0].CostPrice.Equal(src.CostPrice))

	moves := s.store.Movements()
	s.Require().Len(moves, 1)
	mv := moves[0]
	s.Equal(movement.TypeTransfer, mv.Type)
	s.Equal(s.source.ID, *mv.BatchID)
	s.Equal(dst[0].ID, *mv.RelatedBatchID)
	s.Equal(movement.RebalancingRef(req.ID), mv.Reference)
	s.True(mv.TotalCost.Equal(cost))

	inv, ok := s.store.Inventory(s.product)
	s.Require().True(ok)
	s.Equal(10, inv.TotalQuantity)
	s.Equal(map[int64]int{s.shop: 6, s.depot: 4}, inv.StoreBreakdown)
	s.Equal([]int64{s.product}, s.inv.ids)

	_, err = s.svc.Cancel(s.ctx, req.ID, 1, "too late")
	s.ErrorIs(err, rebalancing.ErrCannotCancel)
}

func (s *ServiceSuite) TestStartTransitRechecksSource() {
	req := s.create(5)
	_, err := s.svc.Approve(s.ctx, req.ID, 2)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Atomically(s.ctx, func(ctx context.Context, tx *memstore.Tx) error {
		b, err := tx.GetBatchForUpdate(ctx, s.source.ID)
		if err != nil {
			return err
		}
		if err := b.Withdraw(7); err != nil {
			return err
		}
		return tx.UpdateBatchStock(ctx, b)
	}))

	_, err = s.svc.StartTransit(s.ctx, req.ID, nil)
	s.ErrorIs(err, shared.ErrInsufficientQuantity)

	got, err := s.svc.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusApproved, got.Status)
}

func (s *ServiceSuite) TestCancelOpenRequest() {
	req := s.create(2)
	_, err := s.svc.Approve(s.ctx, req.ID, 2)
	s.Require().NoError(err)
	_, err = s.svc.StartTransit(s.ctx, req.ID, nil)
	s.Require().NoError(err)

	req, err = s.svc.Cancel(s.ctx, req.ID, 4, "truck broke down")
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusCancelled, req.Status)
	s.Equal("truck broke down", req.CancellationReason)
	s.Equal(int64(4), *req.CancelledBy)

	_, err = s.svc.Cancel(s.ctx, req.ID, 4, "again")
	s.ErrorIs(err, rebalancing.ErrCannotCancel)

	src, _ := s.store.Batch(s.source.ID)
	s.Equal(10, src.Quantity)
	s.Empty(s.store.Movements())
}

func (s *ServiceSuite) TestFailedCompletionLeavesRequestInTransit() {
	req := s.create(3)
	_, err := s.svc.Approve(s.ctx, req.ID, 2)
	s.Require().NoError(err)
	_, err = s.svc.StartTransit(s.ctx, req.ID, nil)
	s.Require().NoError(err)

	s.store.FailOn("InsertMovement", assert.AnError)
	_, err = s.svc.Complete(s.ctx, req.ID, 2, nil)
	s.ErrorIs(err, assert.AnError)

	got, err := s.svc.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(rebalancing.StatusInTransit, got.Status)
	src, _ := s.store.Batch(s.source.ID)
	s.Equal(10, src.Quantity)
	s.Empty(s.store.BatchesAt(s.product, s.depot))
	s.Empty(s.inv.ids)
}

func (s *ServiceSuite) TestListFilters() {
	first := s.create(1)
	second := s.create(2)
	_, err := s.svc.Cancel(s.ctx, first.ID, 1, "dup")
	s.Require().NoError(err)

	open, err := s.svc.List(s.ctx, rebalancing.ListFilter{OpenOnly: true})
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(second.ID, open[0].ID)

	byStore, err := s.svc.List(s.ctx, rebalancing.ListFilter{StoreID: s.depot})
	s.Require().NoError(err)
	s.Len(byStore, 2)

	_, err = s.svc.Get(s.ctx, 424242)
	s.ErrorIs(err, rebalancing.ErrNotFound)
}

func TestSuggestDrainsOverstockedStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	store := memstore.New()
	north := store.AddStore("north", batch.StoreKindShop, true)
	south := store.AddStore("south", batch.StoreKindShop, true)
	mall := store.AddStore("mall", batch.StoreKindShop, true)
	product := store.AddProduct(nil)
	for storeID, qty := range map[int64]int{north: 10, south: 12} {
		b := batch.Batch{ProductID: product, StoreID: storeID, IsActive: true}
		require.NoError(t, b.UpdateQuantity(qty))
		store.AddBatch(b)
	}
	big := batch.Batch{ProductID: product, StoreID: mall, IsActive: true}
	require.NoError(t, big.UpdateQuantity(60))
	big = store.AddBatch(big)

	maxLevel := 50
	store.SetThresholds(product, masterinventory.Thresholds{MaximumStockLevel: &maxLevel})
	require.NoError(t, store.Atomically(ctx, func(ctx context.Context, tx *memstore.Tx) error {
		_, err := masterinventory.Sync(ctx, tx, product, now)
		return err
	}))

	svc := rebalancing.NewService(memRepo{store: store}, nil, nil)
	svc.WithClock(func() time.Time { return now })

	got, err := svc.Suggest(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, big.ID, got[0].SourceBatchID)
	assert.Equal(t, mall, got[0].SourceStoreID)
	assert.Equal(t, north, got[0].DestinationStoreID)
	assert.Equal(t, 32, got[0].Quantity)

	created, err := svc.CreateSuggested(ctx, 9)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, rebalancing.StatusPending, created[0].Status)
	assert.Equal(t, 32, created[0].Quantity)

	again, err := svc.CreateSuggested(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSuggestWithoutOverstockIsEmpty(t *testing.T) {
	store := memstore.New()
	svc := rebalancing.NewService(memRepo{store: store}, nil, nil)
	got, err := svc.Suggest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
