package application

import (
	"context"

	"github.com/marketkit/orderflow/internal/order/domain"
)

// OutboxMessage is staged inside the same transaction as the plan it belongs
// to, so the event is published iff the writes commit.
type OutboxMessage struct {
	Type        string
	Payload     []byte
	Headers     map[string]string
	Traceparent string
}

type OrderRepository interface {
	// Get loads the order with items (including tracking flags) and payment.
	Get(ctx context.Context, id int64) (domain.Order, error)
	// ApplyTransition applies the whole plan in one transaction. It locks the
	// order row, re-checks the version recorded in the plan, and returns
	// ErrConcurrentModification on mismatch. Inventory deltas are applied as
	// atomic row-level increments, clamped at zero; the post-clamp result is
	// reported back together with the order as this transaction left it, read
	// before commit so later concurrent changes cannot leak into the result.
	// msg may be nil when no event should be published.
	ApplyTransition(ctx context.Context, plan domain.TransitionPlan, msg *OutboxMessage) (domain.Order, []domain.AppliedAdjustment, error)
}
