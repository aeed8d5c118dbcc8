// Package rebalancing moves surplus stock between stores through an approval workflow.
package rebalancing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status is the request lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanApprove checks if the request can be approved.
func (s Status) CanApprove() bool { return s == StatusPending }

// CanStartTransit checks if stock can leave the source store.
func (s Status) CanStartTransit() bool { return s == StatusApproved }

// CanComplete checks if the transfer can be booked.
func (s Status) CanComplete() bool { return s == StatusInTransit }

// CanCancel checks if the request can still be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusApproved || s == StatusInTransit
}

// IsOpen reports whether the request is still in flight.
func (s Status) IsOpen() bool { return s.CanCancel() }

// Priority orders requests for the operations team.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Request moves Quantity units of a product from a source batch to a destination store.
type Request struct {
	ID                 int64            `json:"id"`
	ProductID          int64            `json:"product_id"`
	SourceBatchID      int64            `json:"source_batch_id"`
	SourceStoreID      int64            `json:"source_store_id"`
	DestinationStoreID int64            `json:"destination_store_id"`
	DestinationBatchID *int64           `json:"destination_batch_id,omitempty"`
	Quantity           int              `json:"quantity"`
	Status             Status           `json:"status"`
	Priority           Priority         `json:"priority"`
	Reason             string           `json:"reason,omitempty"`
	DispatchID         *int64           `json:"dispatch_id,omitempty"`
	ActualCost         *decimal.Decimal `json:"actual_cost,omitempty"`
	RequestedBy        int64            `json:"requested_by"`
	RequestedAt        time.Time        `json:"requested_at"`
	ApprovedBy         *int64           `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	TransitStartedAt   *time.Time       `json:"transit_started_at,omitempty"`
	CompletedBy        *int64           `json:"completed_by,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CancelledBy        *int64           `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ListFilter narrows request listings.
type ListFilter struct {
	Status    Status
	ProductID int64
	StoreID   int64
	OpenOnly  bool
}

// Suggestion is a proposed transfer out of an overstocked store.
type Suggestion struct {
	ProductID          int64  `json:"product_id"`
	SourceBatchID      int64  `json:"source_batch_id"`
	SourceStoreID      int64  `json:"source_store_id"`
	DestinationStoreID int64  `json:"destination_store_id"`
	Quantity           int    `json:"quantity"`
	Reason             string `json:"reason"`
}

var (
	// ErrNotFound indicates the request does not exist.
	ErrNotFound = fmt.Errorf("rebalancing: %w", shared.ErrNotFound)
	// ErrCannotApprove indicates the request is not pending.
	ErrCannotApprove = fmt.Errorf("rebalancing: only pending requests can be approved: %w", shared.ErrInvalidTransition)
	// ErrCannotStartTransit indicates the request is not approved.
	ErrCannotStartTransit = fmt.Errorf("rebalancing: only approved requests can start transit: %w", shared.ErrInvalidTransition)
	// ErrCannotComplete indicates the request is not in transit.
	ErrCannotComplete = fmt.Errorf("rebalancing: only in-transit requests can be completed: %w", shared.ErrInvalidTransition)
	// ErrCannotCancel indicates the request already completed or was cancelled.
	ErrCannotCancel = fmt.Errorf("rebalancing: request can no longer be cancelled: %w", shared.ErrInvalidTransition)
	// ErrSameStore indicates source and destination are the same store.
	ErrSameStore = fmt.Errorf("rebalancing: destination must differ from source: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("rebalancing: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidPriority indicates an unknown priority.
	ErrInvalidPriority = fmt.Errorf("rebalancing: unknown priority: %w", shared.ErrValidation)
	// ErrInactiveStore indicates the destination store is closed.
	ErrInactiveStore = fmt.Errorf("rebalancing: destination store inactive: %w", shared.ErrValidation)
)
