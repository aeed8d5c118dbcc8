// Package movement records the append-only audit trail of stock transitions.
package movement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Type classifies a movement.
type Type string

const (
	TypeDispatch   Type = "dispatch"
	TypeTransfer   Type = "transfer"
	TypeReturn     Type = "return"
	TypeAdjustment Type = "adjustment"
	TypeSale       Type = "sale"
	TypeDefective  Type = "defective"
)

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeDispatch, TypeTransfer, TypeReturn, TypeAdjustment, TypeSale, TypeDefective:
		return true
	default:
		return false
	}
}

// ReferenceKind enumerates the entities that can trigger a movement.
type ReferenceKind string

const (
	RefOrder         ReferenceKind = "order"
	RefDispatch      ReferenceKind = "dispatch"
	RefRebalancing   ReferenceKind = "rebalancing"
	RefReturn        ReferenceKind = "return"
	RefDefect        ReferenceKind = "defect"
	RefPurchaseOrder ReferenceKind = "purchase_order"
	RefShipment      ReferenceKind = "shipment"
)

// Reference points at the entity that caused the movement. The zero value means "no reference".
type Reference struct {
	Kind ReferenceKind `json:"kind,omitempty"`
	ID   int64         `json:"id,omitempty"`
}

// OrderRef references a sales order.
func OrderRef(id int64) Reference { return Reference{Kind: RefOrder, ID: id} }

// DispatchRef references a dispatch.
func DispatchRef(id int64) Reference { return Reference{Kind: RefDispatch, ID: id} }

// RebalancingRef references a rebalancing request.
func RebalancingRef(id int64) Reference { return Reference{Kind: RefRebalancing, ID: id} }

// ReturnRef references a customer return.
func ReturnRef(id int64) Reference { return Reference{Kind: RefReturn, ID: id} }

// DefectRef references a defective product record.
func DefectRef(id int64) Reference { return Reference{Kind: RefDefect, ID: id} }

// PurchaseOrderRef references the purchase order stock was received against.
func PurchaseOrderRef(id int64) Reference { return Reference{Kind: RefPurchaseOrder, ID: id} }

// ShipmentRef references a carrier shipment.
func ShipmentRef(id int64) Reference { return Reference{Kind: RefShipment, ID: id} }

// IsZero reports whether no reference is set.
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Validate ensures the reference names a known kind and a positive id.
func (r Reference) Validate() error {
	if r.IsZero() {
		return nil
	}
	switch r.Kind {
	case RefOrder, RefDispatch, RefRebalancing, RefReturn, RefDefect, RefPurchaseOrder, RefShipment:
	default:
		return fmt.Errorf("movement: unknown reference kind %q: %w", r.Kind, shared.ErrValidation)
	}
	if r.ID <= 0 {
		return fmt.Errorf("movement: reference id required: %w", shared.ErrValidation)
	}
	return nil
}

// String renders kind:id.
func (r Reference) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Movement is one immutable quantity or status transition.
type Movement struct {
	ID             int64           `json:"id"`
	BatchID        *int64          `json:"batch_id,omitempty"`
	RelatedBatchID *int64          `json:"related_batch_id,omitempty"`
	BarcodeID      *int64          `json:"barcode_id,omitempty"`
	FromStoreID    *int64          `json:"from_store_id,omitempty"`
	ToStoreID      *int64          `json:"to_store_id,omitempty"`
	Type           Type            `json:"movement_type"`
	Quantity       int             `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	TotalValue     decimal.Decimal `json:"total_value"`
	StatusBefore   string          `json:"status_before,omitempty"`
	StatusAfter    string          `json:"status_after,omitempty"`
	Reference      Reference       `json:"reference"`
	PerformedBy    int64           `json:"performed_by"`
	MovementDate   time.Time       `json:"movement_date"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Input describes a movement to record.
type Input struct {
	BatchID        *int64
	RelatedBatchID *int64
	BarcodeID      *int64
	FromStoreID    *int64
	ToStoreID      *int64
	Type           Type
	Quantity       int
	UnitCost       decimal.Decimal
	UnitPrice      decimal.Decimal
	TotalCost      *decimal.Decimal
	TotalValue     *decimal.Decimal
	StatusBefore   string
	StatusAfter    string
	Reference      Reference
	PerformedBy    int64
	MovementDate   time.Time
	Notes          string
}

// Filter narrows movement queries. StoreID matches either side of the movement.
type Filter struct {
	BatchID   int64
	BarcodeID int64
	StoreID   int64
	Type      Type
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = fmt.Errorf("movement: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidType indicates an unknown movement type.
	ErrInvalidType = fmt.Errorf("movement: unknown movement type: %w", shared.ErrValidation)
	// ErrMissingSubject indicates neither batch nor barcode was referenced.
	ErrMissingSubject = fmt.Errorf("movement: batch or barcode required: %w", shared.ErrValidation)
	// ErrInvalidRange indicates a date range ending before it starts.
	ErrInvalidRange = fmt.Errorf("movement: date range end before start: %w", shared.ErrValidation)
	// ErrNotFound indicates no movement matched.
	ErrNotFound = fmt.Errorf("movement: %w", shared.ErrNotFound)
)

// Build validates the input and fills derived totals and the movement date.
func Build(in Input, now time.Time) (Movement, error) {
	if !in.Type.IsValid() {
		return Movement{}, ErrInvalidType
	}
	if in.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if in.BatchID == nil && in.BarcodeID == nil {
		return Movement{}, ErrMissingSubject
	}
	if err := in.Reference.Validate(); err != nil {
		return Movement{}, err
	}
	qty := decimal.NewFromInt(int64(in.Quantity))
	m := Movement{
		BatchID:        in.BatchID,
		RelatedBatchID: in.RelatedBatchID,
		BarcodeID:      in.BarcodeID,
		FromStoreID:    in.FromStoreID,
		ToStoreID:      in.ToStoreID,
		Type:           in.Type,
		Quantity:       in.Quantity,
		UnitCost:       in.UnitCost,
		UnitPrice:      in.UnitPrice,
		TotalCost:      qty.Mul(in.UnitCost),
		TotalValue:     qty.Mul(in.UnitPrice),
		StatusBefore:   in.StatusBefore,
		StatusAfter:    in.StatusAfter,
		Reference:      in.Reference,
		PerformedBy:    in.PerformedBy,
		MovementDate:   in.MovementDate,
		Notes:          in.Notes,
	}
	if in.TotalCost != nil {
		m.TotalCost = *in.TotalCost
	}
	if in.TotalValue != nil {
		m.TotalValue = *in.TotalValue
	}
	if m.MovementDate.IsZero() {
		m.MovementDate = now
	}
	return m, nil
}
