package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a state machine guard rejected the request.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInsufficientQuantity indicates the source cannot cover the requested units.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or duplicate-processing conflict.
	ErrConflict = errors.New("conflict")
	// ErrBelowMinimumPrice indicates a manual price below the permitted floor.
	ErrBelowMinimumPrice = errors.New("price below minimum")
)
