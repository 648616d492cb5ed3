package application

import "errors"

// All reconciler failures are recoverable by the caller; ErrConcurrentModification
// is the one the admin UI is expected to retry after a re-read.
var (
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrOrderNotFound          = errors.New("order not found")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrInvalidRefundAmount    = errors.New("refund amount must be greater than zero and at most the order total")
	ErrInvalidOrderState      = errors.New("order state does not permit this operation")
	ErrMissingReason          = errors.New("refund reason is required")
	ErrNoteTooLong            = errors.New("note exceeds maximum length")
	ErrInvalidRefundItems     = errors.New("refund references line items not on the order")
)
