// Package dispatch ships batches in bulk from one store to another.
package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status is the dispatch lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit checks if items may still be added or removed.
func (s Status) CanEdit() bool { return s == StatusPending }

// CanDispatch checks if the shipment can leave the source store.
func (s Status) CanDispatch() bool { return s == StatusPending }

// CanDeliver checks if the shipment can be received.
func (s Status) CanDeliver() bool { return s == StatusInTransit }

// CanCancel checks if the dispatch can be cancelled.
func (s Status) CanCancel() bool { return s == StatusPending || s == StatusInTransit }

// ItemStatus tracks one line through shipping and receipt.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemDispatched ItemStatus = "dispatched"
	ItemReceived   ItemStatus = "received"
	ItemDamaged    ItemStatus = "damaged"
	ItemMissing    ItemStatus = "missing"
)

// Dispatch is a bulk store-to-store shipment.
type Dispatch struct {
	ID                   int64           `json:"id"`
	DispatchNumber       string          `json:"dispatch_number"`
	SourceStoreID        int64           `json:"source_store_id"`
	DestinationStoreID   int64           `json:"destination_store_id"`
	Status               Status          `json:"status"`
	Carrier              string          `json:"carrier,omitempty"`
	TrackingNumber       string          `json:"tracking_number,omitempty"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time      `json:"actual_delivery_date,omitempty"`
	TotalItems           int             `json:"total_items"`
	TotalQuantity        int             `json:"total_quantity"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	TotalValue           decimal.Decimal `json:"total_value"`
	Notes                string          `json:"notes,omitempty"`
	CreatedBy            int64           `json:"created_by"`
	ApprovedBy           *int64          `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	DispatchedAt         *time.Time      `json:"dispatched_at,omitempty"`
	DeliveredBy          *int64          `json:"delivered_by,omitempty"`
	CancelledBy          *int64          `json:"cancelled_by,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason   string          `json:"cancellation_reason,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Items                []Item          `json:"items,omitempty"`
}

// Item is one batch line on a dispatch.
type Item struct {
	ID                 int64           `json:"id"`
	DispatchID         int64           `json:"dispatch_id"`
	BatchID            int64           `json:"batch_id"`
	ProductID          int64           `json:"product_id"`
	Quantity           int             `json:"quantity"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Status             ItemStatus      `json:"status"`
	ReceivedQuantity   int             `json:"received_quantity"`
	DamagedQuantity    int             `json:"damaged_quantity"`
	MissingQuantity    int             `json:"missing_quantity"`
	DestinationBatchID *int64          `json:"destination_batch_id,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

// TotalCost is quantity times unit cost.
func (i Item) TotalCost() decimal.Decimal {
	return decimal.NewFromInt(int64(i.Quantity)).Mul(i.UnitCost)
}

// TotalValue is quantity times unit price.
func (i Item) TotalValue() decimal.Decimal {
	return decimal.NewFromInt(int64(i.Quantity)).Mul(i.UnitPrice)
}

// Receipt is what arrived at the destination for one item.
type Receipt struct {
	Received int    `json:"received"`
	Damaged  int    `json:"damaged"`
	Missing  int    `json:"missing"`
	Notes    string `json:"notes,omitempty"`
}

// Apply records the receipt on the item. A nil receipt means the full quantity arrived.
func (i *Item) Apply(r *Receipt) error {
	if r == nil {
		r = &Receipt{Received: i.Quantity}
	}
	if r.Received < 0 || r.Damaged < 0 || r.Missing < 0 || r.Received+r.Damaged+r.Missing != i.Quantity {
		return fmt.Errorf("item %d: receipt must account for %d units: %w", i.ID, i.Quantity, ErrInvalidReceipt)
	}
	i.ReceivedQuantity = r.Received
	i.DamagedQuantity = r.Damaged
	i.MissingQuantity = r.Missing
	if r.Notes != "" {
		i.Notes = r.Notes
	}
	switch {
	case r.Damaged > 0:
		i.Status = ItemDamaged
	case r.Missing > 0:
		i.Status = ItemMissing
	default:
		i.Status = ItemReceived
	}
	return nil
}

// HasDiscrepancy reports whether fewer units arrived sound than were shipped.
func (i Item) HasDiscrepancy() bool {
	return i.ReceivedQuantity != i.Quantity
}

// Recalculate rebuilds dispatch totals from items.
func (d *Dispatch) Recalculate() {
	d.TotalItems = len(d.Items)
	d.TotalQuantity = 0
	d.TotalCost = decimal.Zero
	d.TotalValue = decimal.Zero
	for _, it := range d.Items {
		d.TotalQuantity += it.Quantity
		d.TotalCost = d.TotalCost.Add(it.TotalCost())
		d.TotalValue = d.TotalValue.Add(it.TotalValue())
	}
}

// Allocated sums quantities already drawn from batchID on this dispatch.
func (d Dispatch) Allocated(batchID int64) int {
	total := 0
	for _, it := range d.Items {
		if it.BatchID == batchID {
			total += it.Quantity
		}
	}
	return total
}

// ListFilter narrows dispatch listings.
type ListFilter struct {
	Status  Status
	StoreID int64
	Limit   int
	Offset  int
}

var (
	// ErrNotFound indicates the dispatch or item does not exist.
	ErrNotFound = fmt.Errorf("dispatch: %w", shared.ErrNotFound)
	// ErrNotEditable indicates items can no longer change.
	ErrNotEditable = fmt.Errorf("dispatch: items can only change while pending: %w", shared.ErrInvalidTransition)
	// ErrAlreadyApproved indicates the dispatch already has an approver.
	ErrAlreadyApproved = fmt.Errorf("dispatch: already approved: %w", shared.ErrInvalidTransition)
	// ErrCannotApprove indicates the dispatch is not pending.
	ErrCannotApprove = fmt.Errorf("dispatch: only pending dispatches can be approved: %w", shared.ErrInvalidTransition)
	// ErrNotApproved indicates dispatching before approval.
	ErrNotApproved = fmt.Errorf("dispatch: approval required: %w", shared.ErrInvalidTransition)
	// ErrCannotDispatch indicates the dispatch is not pending.
	ErrCannotDispatch = fmt.Errorf("dispatch: only pending dispatches can ship: %w", shared.ErrInvalidTransition)
	// ErrCannotDeliver indicates the dispatch is not in transit.
	ErrCannotDeliver = fmt.Errorf("dispatch: only in-transit dispatches can be delivered: %w", shared.ErrInvalidTransition)
	// ErrCannotCancel indicates the dispatch was delivered or already cancelled.
	ErrCannotCancel = fmt.Errorf("dispatch: dispatch can no longer be cancelled: %w", shared.ErrInvalidTransition)
	// ErrEmpty indicates shipping a dispatch without items.
	ErrEmpty = fmt.Errorf("dispatch: no items: %w", shared.ErrValidation)
	// ErrSameStore indicates source and destination are the same store.
	ErrSameStore = fmt.Errorf("dispatch: destination must differ from source: %w", shared.ErrValidation)
	// ErrInactiveStore indicates a closed store.
	ErrInactiveStore = fmt.Errorf("dispatch: store inactive: %w", shared.ErrValidation)
	// ErrWrongStore indicates the batch is held at another store.
	ErrWrongStore = fmt.Errorf("dispatch: batch not held at source store: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive item quantity.
	ErrInvalidQuantity = fmt.Errorf("dispatch: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidReceipt indicates receipt quantities not matching the shipped quantity.
	ErrInvalidReceipt = fmt.Errorf("dispatch: invalid receipt: %w", shared.ErrValidation)

	errDuplicateNumber = fmt.Errorf("dispatch: %w", shared.ErrConflict)
)

// NewDispatchNumber generates DSP-YYYYMMDD-XXXXXX.
func NewDispatchNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("DSP-%s-%s", now.Format("20060102"), suffix)
}
