package movement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestBuildComputesTotalsAndDefaultsDate(t *testing.T) {
	batchID := int64(4)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	m, err := Build(Input{
		BatchID:   &batchID,
		Type:      TypeTransfer,
		Quantity:  3,
		UnitCost:  decimal.RequireFromString("12.50"),
		UnitPrice: decimal.RequireFromString("20"),
		Reference: RebalancingRef(9),
	}, now)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("37.5").Equal(m.TotalCost))
	require.True(t, decimal.NewFromInt(60).Equal(m.TotalValue))
	require.Equal(t, now, m.MovementDate)
	require.Equal(t, "rebalancing:9", m.Reference.String())
}

func TestBuildKeepsSuppliedTotals(t *testing.T) {
	barcodeID := int64(1)
	total := decimal.NewFromInt(5)
	m, err := Build(Input{
		BarcodeID: &barcodeID,
		Type:      TypeSale,
		Quantity:  1,
		UnitCost:  decimal.NewFromInt(3),
		TotalCost: &total,
	}, time.Now())
	require.NoError(t, err)
	require.True(t, total.Equal(m.TotalCost))
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	batchID := int64(1)
	cases := map[string]Input{
		"unknown type":   {BatchID: &batchID, Type: "teleport", Quantity: 1},
		"zero quantity":  {BatchID: &batchID, Type: TypeSale},
		"no subject":     {Type: TypeSale, Quantity: 1},
		"bad reference":  {BatchID: &batchID, Type: TypeSale, Quantity: 1, Reference: Reference{Kind: "invoice", ID: 2}},
		"missing ref id": {BatchID: &batchID, Type: TypeSale, Quantity: 1, Reference: Reference{Kind: RefOrder}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(in, time.Now())
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestReferenceConstructorsAreValid(t *testing.T) {
	refs := map[ReferenceKind]Reference{
		RefOrder:         OrderRef(1),
		RefDispatch:      DispatchRef(2),
		RefRebalancing:   RebalancingRef(3),
		RefReturn:        ReturnRef(4),
		RefDefect:        DefectRef(5),
		RefPurchaseOrder: PurchaseOrderRef(6),
		RefShipment:      ShipmentRef(7),
	}
	for kind, ref := range refs {
		require.Equal(t, kind, ref.Kind)
		require.NoError(t, ref.Validate(), kind)
	}
}
