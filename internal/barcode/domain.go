// Package barcode tracks individual physical units through their location lifecycle.
package barcode

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/batch"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status is the current location state of a unit.
type Status string

const (
	StatusInWarehouse  Status = "in_warehouse"
	StatusInShop       Status = "in_shop"
	StatusOnDisplay    Status = "on_display"
	StatusInTransit    Status = "in_transit"
	StatusInShipment   Status = "in_shipment"
	StatusWithCustomer Status = "with_customer"
	StatusInReturn     Status = "in_return"
	StatusDefective    Status = "defective"
	StatusRepair       Status = "repair"
	StatusVendorReturn Status = "vendor_return"
	StatusDisposed     Status = "disposed"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusInWarehouse, StatusInShop, StatusOnDisplay, StatusInTransit, StatusInShipment,
		StatusWithCustomer, StatusInReturn, StatusDefective, StatusRepair, StatusVendorReturn, StatusDisposed:
		return true
	default:
		return false
	}
}

// IsSellable reports whether units in this status may be sold.
func (s Status) IsSellable() bool {
	return s == StatusInShop || s == StatusOnDisplay || s == StatusInWarehouse
}

// isCommitted marks statuses counted as reserved in the product aggregate.
func (s Status) isCommitted() bool {
	return s == StatusInTransit || s == StatusInShipment
}

// isWriteOff marks statuses that leave stock for good.
func (s Status) isWriteOff() bool {
	return s == StatusDisposed || s == StatusVendorReturn
}

// isWorkflowOnly marks statuses reached only through the sale and defect workflows.
func (s Status) isWorkflowOnly() bool {
	return s == StatusWithCustomer || s == StatusDefective
}

// InitialStatus seeds a received unit's status from the receiving store kind.
func InitialStatus(kind batch.StoreKind) Status {
	if kind == batch.StoreKindWarehouse {
		return StatusInWarehouse
	}
	return StatusInShop
}

// MovementTypeFor derives the movement recorded when a unit enters status to.
func MovementTypeFor(to Status) movement.Type {
	switch to {
	case StatusWithCustomer:
		return movement.TypeSale
	case StatusInReturn:
		return movement.TypeReturn
	case StatusInTransit:
		return movement.TypeDispatch
	case StatusDefective:
		return movement.TypeDefective
	case StatusInWarehouse, StatusInShop:
		return movement.TypeTransfer
	default:
		return movement.TypeAdjustment
	}
}

// LocationMetadata is the schema of the unit's free-form location details. Zero fields are unset.
type LocationMetadata struct {
	Shelf          string `json:"shelf,omitempty"`
	Section        string `json:"section,omitempty"`
	DispatchID     int64  `json:"dispatch_id,omitempty"`
	RebalancingID  int64  `json:"rebalancing_id,omitempty"`
	ShipmentID     int64  `json:"shipment_id,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	OrderID        int64  `json:"order_id,omitempty"`
	CustomerID     int64  `json:"customer_id,omitempty"`
	SoldAt         string `json:"sold_at,omitempty"`
	ReturnID       int64  `json:"return_id,omitempty"`
	ReturnReason   string `json:"return_reason,omitempty"`
	DefectID       int64  `json:"defect_id,omitempty"`
	Note           string `json:"note,omitempty"`
}

// Merge overlays the set fields of patch onto m.
func (m LocationMetadata) Merge(patch LocationMetadata) LocationMetadata {
	out := m
	setString(&out.Shelf, patch.Shelf)
	setString(&out.Section, patch.Section)
	setInt(&out.DispatchID, patch.DispatchID)
	setInt(&out.RebalancingID, patch.RebalancingID)
	setInt(&out.ShipmentID, patch.ShipmentID)
	setString(&out.TrackingNumber, patch.TrackingNumber)
	setInt(&out.OrderID, patch.OrderID)
	setInt(&out.CustomerID, patch.CustomerID)
	setString(&out.SoldAt, patch.SoldAt)
	setInt(&out.ReturnID, patch.ReturnID)
	setString(&out.ReturnReason, patch.ReturnReason)
	setInt(&out.DefectID, patch.DefectID)
	setString(&out.Note, patch.Note)
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

// Unit is one physically distinct item.
type Unit struct {
	ID                int64            `json:"id"`
	Code              string           `json:"barcode"`
	ProductID         int64            `json:"product_id"`
	BatchID           *int64           `json:"batch_id,omitempty"`
	IsPrimary         bool             `json:"is_primary"`
	IsActive          bool             `json:"is_active"`
	IsDefective       bool             `json:"is_defective"`
	CurrentStoreID    *int64           `json:"current_store_id,omitempty"`
	CurrentStatus     Status           `json:"current_status"`
	LocationUpdatedAt *time.Time       `json:"location_updated_at,omitempty"`
	Location          LocationMetadata `json:"location_metadata"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsAvailableForSale is true for active, sound units in a sellable location.
func (u Unit) IsAvailableForSale() bool {
	return u.IsActive && !u.IsDefective && u.CurrentStatus.IsSellable()
}

// CanBeSold also admits units already handed to a carrier for the order.
func (u Unit) CanBeSold() bool {
	return u.IsAvailableForSale() || (u.IsActive && !u.IsDefective && u.CurrentStatus == StatusInShipment)
}

// CanMoveTo reports whether UpdateLocation may put the unit in status to. Inactive units
// stay put, except defective ones going to repair or being written off.
func (u Unit) CanMoveTo(to Status) bool {
	if u.IsActive {
		return true
	}
	return u.IsDefective && (to == StatusRepair || to.isWriteOff())
}

// CanBeMarkedAsDefective is false once a unit is sold, disposed or already defective.
func (u Unit) CanBeMarkedAsDefective() bool {
	return u.IsActive && !u.IsDefective
}

// Transfer moves up to Quantity sound units of a batch when stock leaves it in bulk.
// Nil targets keep the unit's current batch or store.
type Transfer struct {
	FromBatchID int64
	ToBatchID   *int64
	ToStoreID   *int64
	Status      Status
	Metadata    LocationMetadata
	Quantity    int
	At          time.Time
}

// Candidate reports whether u may be picked by the transfer. Units in a carrier shipment
// stay with their order.
func (t Transfer) Candidate(u Unit) bool {
	return u.BatchID != nil && *u.BatchID == t.FromBatchID &&
		u.IsActive && !u.IsDefective && u.CurrentStatus != StatusInShipment
}

// Apply returns u as the transfer leaves it.
func (t Transfer) Apply(u Unit) Unit {
	if t.ToBatchID != nil {
		id := *t.ToBatchID
		u.BatchID = &id
	}
	if t.ToStoreID != nil {
		id := *t.ToStoreID
		u.CurrentStoreID = &id
	}
	u.CurrentStatus = t.Status
	at := t.At
	u.LocationUpdatedAt = &at
	u.Location = u.Location.Merge(t.Metadata)
	u.IsActive = !t.deactivates()
	u.IsDefective = t.Status == StatusDefective
	return u
}

func (t Transfer) deactivates() bool {
	return t.Status == StatusDefective || t.Status.isWriteOff()
}

// DefectStatus tracks what happened to a defective unit.
type DefectStatus string

const (
	DefectIdentified   DefectStatus = "identified"
	DefectSold         DefectStatus = "sold"
	DefectDisposed     DefectStatus = "disposed"
	DefectVendorReturn DefectStatus = "vendor_return"
)

// DefectiveProduct records a unit pulled from sellable stock.
type DefectiveProduct struct {
	ID           int64            `json:"id"`
	BarcodeID    int64            `json:"barcode_id"`
	ProductID    int64            `json:"product_id"`
	BatchID      *int64           `json:"batch_id,omitempty"`
	StoreID      *int64           `json:"store_id,omitempty"`
	DefectType   string           `json:"defect_type"`
	Description  string           `json:"description,omitempty"`
	OriginalCost decimal.Decimal  `json:"original_cost"`
	MinimumPrice decimal.Decimal  `json:"minimum_price"`
	Status       DefectStatus     `json:"status"`
	SoldPrice    *decimal.Decimal `json:"sold_price,omitempty"`
	SoldOrderID  *int64           `json:"sold_order_id,omitempty"`
	IdentifiedBy int64            `json:"identified_by"`
	IdentifiedAt time.Time        `json:"identified_at"`
	SoldAt       *time.Time       `json:"sold_at,omitempty"`
}

var (
	// ErrNotFound indicates the unit or defect record does not exist.
	ErrNotFound = fmt.Errorf("barcode: %w", shared.ErrNotFound)
	// ErrInvalidStatus indicates an unknown status.
	ErrInvalidStatus = fmt.Errorf("barcode: unknown status: %w", shared.ErrValidation)
	// ErrInactive indicates the unit was sold or disposed and cannot move.
	ErrInactive = fmt.Errorf("barcode: unit is inactive: %w", shared.ErrInvalidTransition)
	// ErrWorkflowStatus indicates a status only MarkSold or MarkAsDefective may set.
	ErrWorkflowStatus = fmt.Errorf("barcode: status is set by its own workflow: %w", shared.ErrInvalidTransition)
	// ErrNotAvailable indicates the unit is not available for sale.
	ErrNotAvailable = fmt.Errorf("barcode: unit not available for sale: %w", shared.ErrInvalidTransition)
	// ErrCannotMarkDefective indicates the unit is already defective, sold or disposed.
	ErrCannotMarkDefective = fmt.Errorf("barcode: unit cannot be marked defective: %w", shared.ErrInvalidTransition)
	// ErrNotReturnable indicates the unit is not with a customer.
	ErrNotReturnable = fmt.Errorf("barcode: unit is not with a customer: %w", shared.ErrInvalidTransition)
	// ErrDefectClosed indicates the defect record was already sold or written off.
	ErrDefectClosed = fmt.Errorf("barcode: defective product already closed: %w", shared.ErrInvalidTransition)
	// ErrBelowMinimumPrice indicates a defective sale under its price floor.
	ErrBelowMinimumPrice = fmt.Errorf("barcode: %w", shared.ErrBelowMinimumPrice)
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = fmt.Errorf("barcode: code already registered: %w", shared.ErrConflict)
)

// CodeFor builds the code of the nth unit received into a batch.
func CodeFor(batchNumber string, n int) string {
	return fmt.Sprintf("%s-%04d", batchNumber, n)
}
