package barcode_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/barcode/shipment"
	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/memstore"
)

type memRepo struct{ store *memstore.Store }

func (r memRepo) WithTx(ctx context.Context, fn func(context.Context, barcode.TxRepository) error) error {
	return r.store.Atomically(ctx, func(ctx context.Context, tx *memstore.Tx) error { return fn(ctx, tx) })
}

type failingTracker struct{ calls int }

func (f *failingTracker) Track(context.Context, string) (shipment.Status, error) {
	f.calls++
	return shipment.Status{}, errors.New("carrier down")
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memstore.Store
	tracker *failingTracker
	svc     *barcode.Service
	shop    int64
	product int64
	batch   batch.Batch
	units   []barcode.Unit
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memstore.New()
	s.tracker = &failingTracker{}
	s.svc = barcode.NewService(memRepo{s.store}, nil, s.tracker, nil)
	s.svc.WithClock(func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) })

	s.shop = s.store.AddStore("downtown", batch.StoreKindShop, true)
	s.product = s.store.AddProduct(nil)
	s.batch = s.store.AddBatch(batch.Batch{
		ProductID:    s.product,
		StoreID:      s.shop,
		Quantity:     3,
		CostPrice:    decimal.NewFromInt(10),
		SellPrice:    decimal.NewFromInt(15),
		Availability: true,
		IsActive:     true,
	})
	s.units = nil
	for n := 1; n <= 3; n++ {
		s.units = append(s.units, s.store.AddUnit(barcode.Unit{
			Code:           barcode.CodeFor(s.batch.BatchNumber, n),
			ProductID:      s.product,
			BatchID:        &s.batch.ID,
			IsPrimary:      n == 1,
			IsActive:       true,
			CurrentStoreID: &s.shop,
			CurrentStatus:  barcode.StatusInShop,
		}))
	}
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) batchQuantity() int {
	b, ok := s.store.Batch(s.batch.ID)
	s.Require().True(ok)
	return b.Quantity
}

func (s *ServiceSuite) TestScanUnknownCodeIsNotAnError() {
	res, err := s.svc.Scan(s.ctx, "NOPE-0001")
	s.Require().NoError(err)
	s.False(res.Found)
	s.Nil(res.Unit)
}

func (s *ServiceSuite) TestMarkSoldWithdrawsAndRecords() {
	unit, err := s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 77, CustomerID: 5, Actor: 9})
	s.Require().NoError(err)
	s.False(unit.IsActive)
	s.Equal(barcode.StatusWithCustomer, unit.CurrentStatus)
	s.Equal(int64(77), unit.Location.OrderID)
	s.Equal(2, s.batchQuantity())

	moves := s.store.Movements()
	s.Require().Len(moves, 1)
	s.Equal(movement.TypeSale, moves[0].Type)
	s.Equal(movement.OrderRef(77), moves[0].Reference)
	s.Equal("in_shop", moves[0].StatusBefore)
	s.True(decimal.NewFromInt(15).Equal(moves[0].UnitPrice))

	inv, ok := s.store.Inventory(s.product)
	s.Require().True(ok)
	s.Equal(2, inv.AvailableQuantity)

	_, err = s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 77, Actor: 9})
	s.ErrorIs(err, shared.ErrConflict)
	s.Equal(2, s.batchQuantity())
}

func (s *ServiceSuite) TestMarkSoldRejectsUnavailableUnit() {
	_, err := s.svc.MarkInTransit(s.ctx, s.units[1].ID, 0, 9)
	s.Require().NoError(err)

	_, err = s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[1].ID, OrderID: 1, Actor: 9})
	s.ErrorIs(err, barcode.ErrNotAvailable)
	s.Equal(3, s.batchQuantity())
}

func (s *ServiceSuite) TestMarkReturnedRestoresStock() {
	_, err := s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 1, Actor: 9})
	s.Require().NoError(err)

	unit, err := s.svc.MarkReturned(s.ctx, barcode.ReturnInput{BarcodeID: s.units[0].ID, ReturnID: 4, Reason: "wrong size", Actor: 9})
	s.Require().NoError(err)
	s.True(unit.IsActive)
	s.Equal(barcode.StatusInReturn, unit.CurrentStatus)
	s.Equal("wrong size", unit.Location.ReturnReason)
	s.Equal(3, s.batchQuantity())

	inv, _ := s.store.Inventory(s.product)
	s.Equal(3, inv.AvailableQuantity)

	_, err = s.svc.MarkReturned(s.ctx, barcode.ReturnInput{BarcodeID: s.units[1].ID, ReturnID: 5, Actor: 9})
	s.ErrorIs(err, barcode.ErrNotReturnable)
}

func (s *ServiceSuite) TestMarkAsDefectiveOnlyOnce() {
	defect, err := s.svc.MarkAsDefective(s.ctx, barcode.DefectInput{
		BarcodeID:    s.units[2].ID,
		DefectType:   "scratch",
		MinimumPrice: decimal.NewFromInt(5),
		Actor:        9,
	})
	s.Require().NoError(err)
	s.Equal(barcode.DefectIdentified, defect.Status)
	s.True(decimal.NewFromInt(10).Equal(defect.OriginalCost))
	s.Equal(2, s.batchQuantity())

	inv, _ := s.store.Inventory(s.product)
	s.Equal(1, inv.DamagedQuantity)
	s.Equal(2, inv.AvailableQuantity)

	_, err = s.svc.MarkAsDefective(s.ctx, barcode.DefectInput{BarcodeID: s.units[2].ID, DefectType: "scratch", Actor: 9})
	s.ErrorIs(err, barcode.ErrCannotMarkDefective)
	s.Equal(2, s.batchQuantity())
}

func (s *ServiceSuite) TestSellDefectiveEnforcesFloor() {
	defect, err := s.svc.MarkAsDefective(s.ctx, barcode.DefectInput{
		BarcodeID:    s.units[2].ID,
		DefectType:   "dent",
		MinimumPrice: decimal.NewFromInt(6),
		Actor:        9,
	})
	s.Require().NoError(err)

	_, err = s.svc.SellDefective(s.ctx, barcode.SellDefectiveInput{DefectID: defect.ID, Price: decimal.RequireFromString("5.99"), OrderID: 3, Actor: 9})
	s.ErrorIs(err, barcode.ErrBelowMinimumPrice)

	sold, err := s.svc.SellDefective(s.ctx, barcode.SellDefectiveInput{DefectID: defect.ID, Price: decimal.NewFromInt(6), OrderID: 3, Actor: 9})
	s.Require().NoError(err)
	s.Equal(barcode.DefectSold, sold.Status)

	_, err = s.svc.SellDefective(s.ctx, barcode.SellDefectiveInput{DefectID: defect.ID, Price: decimal.NewFromInt(9), OrderID: 4, Actor: 9})
	s.ErrorIs(err, barcode.ErrDefectClosed)
}

func (s *ServiceSuite) TestSetPrimaryKeepsOnePerProduct() {
	_, err := s.svc.SetPrimary(s.ctx, s.units[1].ID)
	s.Require().NoError(err)

	primaries := 0
	for _, u := range s.store.Units(s.product) {
		if u.IsPrimary {
			primaries++
			s.Equal(s.units[1].ID, u.ID)
		}
	}
	s.Equal(1, primaries)

	b, _ := s.store.Batch(s.batch.ID)
	s.Require().NotNil(b.PrimaryBarcodeID)
	s.Equal(s.units[1].ID, *b.PrimaryBarcodeID)
}

func (s *ServiceSuite) TestMovementFailureRollsBackSale() {
	s.store.FailOn("InsertMovement", errors.New("insert failed"))

	_, err := s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 8, Actor: 9})
	s.Require().Error(err)

	s.Equal(3, s.batchQuantity())
	unit, _ := s.store.Unit(s.units[0].ID)
	s.True(unit.IsActive)
	s.Equal(barcode.StatusInShop, unit.CurrentStatus)
	s.Empty(s.store.Movements())

	s.store.FailOn("InsertMovement", nil)
	_, err = s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 8, Actor: 9})
	s.NoError(err)
}

func (s *ServiceSuite) TestInactiveUnitCannotMove() {
	_, err := s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 1, Actor: 9})
	s.Require().NoError(err)

	_, err = s.svc.MoveToShop(s.ctx, s.units[0].ID, s.shop, 9)
	s.ErrorIs(err, barcode.ErrInactive)

	_, err = s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[1].ID, Status: "lost"})
	s.ErrorIs(err, barcode.ErrInvalidStatus)
}

func (s *ServiceSuite) TestUpdateLocationRejectsWorkflowStatuses() {
	for _, status := range []barcode.Status{barcode.StatusWithCustomer, barcode.StatusDefective} {
		_, err := s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[0].ID, Status: status, Actor: 9})
		s.ErrorIs(err, barcode.ErrWorkflowStatus, string(status))
	}

	unit, _ := s.store.Unit(s.units[0].ID)
	s.True(unit.IsActive)
	s.Equal(barcode.StatusInShop, unit.CurrentStatus)
	s.Equal(3, s.batchQuantity())
	s.Empty(s.store.Movements())
}

func (s *ServiceSuite) TestDisposeWithdrawsFromBatch() {
	unit, err := s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[0].ID, Status: barcode.StatusDisposed, Notes: "water damage", Actor: 9})
	s.Require().NoError(err)
	s.False(unit.IsActive)
	s.Equal(barcode.StatusDisposed, unit.CurrentStatus)
	s.Equal(2, s.batchQuantity())

	inv, ok := s.store.Inventory(s.product)
	s.Require().True(ok)
	s.Equal(2, inv.AvailableQuantity)

	moves := s.store.Movements()
	s.Require().Len(moves, 1)
	s.Equal(movement.TypeAdjustment, moves[0].Type)
	s.Equal("disposed", moves[0].StatusAfter)

	_, err = s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[0].ID, Status: barcode.StatusVendorReturn, Actor: 9})
	s.ErrorIs(err, barcode.ErrInactive)
	s.Equal(2, s.batchQuantity())

	_, err = s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[1].ID, Status: barcode.StatusVendorReturn, Actor: 9})
	s.Require().NoError(err)
	s.Equal(1, s.batchQuantity())
}

func (s *ServiceSuite) TestDefectiveUnitCanBeWrittenOffWithoutTouchingBatch() {
	_, err := s.svc.MarkAsDefective(s.ctx, barcode.DefectInput{BarcodeID: s.units[2].ID, DefectType: "crack", Actor: 9})
	s.Require().NoError(err)
	s.Equal(2, s.batchQuantity())

	unit, err := s.svc.UpdateLocation(s.ctx, barcode.LocationInput{BarcodeID: s.units[2].ID, Status: barcode.StatusDisposed, Actor: 9})
	s.Require().NoError(err)
	s.False(unit.IsActive)
	s.Equal(2, s.batchQuantity())

	inv, _ := s.store.Inventory(s.product)
	s.Equal(0, inv.DamagedQuantity)

	_, err = s.svc.MoveToShop(s.ctx, s.units[2].ID, s.shop, 9)
	s.ErrorIs(err, barcode.ErrInactive)
}

func (s *ServiceSuite) TestMarkSoldFromShipment() {
	_, err := s.svc.MarkInShipment(s.ctx, s.units[0].ID, 30, "TRK-1", 9)
	s.Require().NoError(err)
	inv, _ := s.store.Inventory(s.product)
	s.Equal(1, inv.ReservedQuantity)

	unit, err := s.svc.MarkSold(s.ctx, barcode.SaleInput{BarcodeID: s.units[0].ID, OrderID: 41, Actor: 9})
	s.Require().NoError(err)
	s.False(unit.IsActive)
	s.Equal(barcode.StatusWithCustomer, unit.CurrentStatus)
	s.Equal(int64(30), unit.Location.ShipmentID)
	s.Equal(2, s.batchQuantity())

	inv, _ = s.store.Inventory(s.product)
	s.Equal(0, inv.ReservedQuantity)
	s.Equal(2, inv.AvailableQuantity)

	moves := s.store.Movements()
	s.Require().Len(moves, 2)
	s.Equal(movement.TypeSale, moves[1].Type)
	s.Equal("in_shipment", moves[1].StatusBefore)
}

func (s *ServiceSuite) TestReturnedDefectiveSaleStaysOutOfBatch() {
	defect, err := s.svc.MarkAsDefective(s.ctx, barcode.DefectInput{BarcodeID: s.units[2].ID, DefectType: "dent", Actor: 9})
	s.Require().NoError(err)
	_, err = s.svc.SellDefective(s.ctx, barcode.SellDefectiveInput{DefectID: defect.ID, Price: decimal.NewFromInt(4), OrderID: 3, Actor: 9})
	s.Require().NoError(err)
	s.Equal(2, s.batchQuantity())

	unit, err := s.svc.MarkReturned(s.ctx, barcode.ReturnInput{BarcodeID: s.units[2].ID, ReturnID: 6, Reason: "still dented", Actor: 9})
	s.Require().NoError(err)
	s.False(unit.IsActive)
	s.True(unit.IsDefective)
	s.Equal(barcode.StatusDefective, unit.CurrentStatus)
	s.Equal(2, s.batchQuantity())

	inv, _ := s.store.Inventory(s.product)
	s.Equal(2, inv.AvailableQuantity)
	s.Equal(1, inv.DamagedQuantity)
}

func (s *ServiceSuite) TestTransitCountsAsReservedAndScans() {
	unit, err := s.svc.MarkInTransit(s.ctx, s.units[1].ID, 12, 9)
	s.Require().NoError(err)
	s.Equal(int64(12), unit.Location.DispatchID)

	inv, ok := s.store.Inventory(s.product)
	s.Require().True(ok)
	s.Equal(1, inv.ReservedQuantity)
	s.Equal(3, inv.AvailableQuantity)

	res, err := s.svc.Scan(s.ctx, s.units[1].Code)
	s.Require().NoError(err)
	s.True(res.Found)
	s.False(res.AvailableForSale)
	s.Require().NotNil(res.LastMovement)
	s.Equal(movement.TypeDispatch, res.LastMovement.Type)
	s.Equal(movement.DispatchRef(12), res.LastMovement.Reference)
	s.Len(res.History, 1)
	s.Require().NotNil(res.Batch)
	s.Equal(s.batch.ID, res.Batch.ID)
}

func (s *ServiceSuite) TestPlaceOnDisplaySkipsSyncButRecordsAdjustment() {
	unit, err := s.svc.PlaceOnDisplay(s.ctx, s.units[0].ID, "A3", 9)
	s.Require().NoError(err)
	s.Equal("A3", unit.Location.Shelf)
	s.Equal(barcode.StatusOnDisplay, unit.CurrentStatus)

	_, synced := s.store.Inventory(s.product)
	s.False(synced)
	moves := s.store.Movements()
	s.Require().Len(moves, 1)
	s.Equal(movement.TypeAdjustment, moves[0].Type)
}

func (s *ServiceSuite) TestShipmentStatusToleratesCarrierFailure() {
	_, err := s.svc.MarkInShipment(s.ctx, s.units[0].ID, 30, "TRK-1", 9)
	s.Require().NoError(err)

	info, err := s.svc.ShipmentStatus(s.ctx, s.units[0].ID)
	s.Require().NoError(err)
	s.True(info.InShipment)
	s.Equal("TRK-1", info.TrackingNumber)
	s.Equal(int64(30), info.ShipmentID)
	s.Nil(info.Carrier)
	s.Equal(1, s.tracker.calls)
}

func TestMarkSoldRequiresOrder(t *testing.T) {
	svc := barcode.NewService(memRepo{memstore.New()}, nil, nil, nil)
	_, err := svc.MarkSold(context.Background(), barcode.SaleInput{BarcodeID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
