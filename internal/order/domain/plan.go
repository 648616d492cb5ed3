package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockAdjustment is a requested atomic increment against one tracked entity.
type StockAdjustment struct {
	Ref   StockRef
	SKU   string
	Delta int
}

// AppliedAdjustment is what the store actually did. Applied can differ from
// Requested when a take-back was clamped at zero on-hand.
type AppliedAdjustment struct {
	Ref       StockRef `json:"ref"`
	SKU       string   `json:"sku"`
	Requested int      `json:"requested"`
	Applied   int      `json:"applied"`
	OnHand    int      `json:"on_hand"`
}

// TransitionPlan is the full set of writes one reconciler operation performs.
// The store applies it in a single transaction, verifying ExpectedVersion
// against the row it locks.
type TransitionPlan struct {
	OrderID         int64
	ExpectedVersion int64
	From            OrderStatus
	To              OrderStatus
	Stamp           StampField
	Payment         PaymentStatus // "" leaves the payment record untouched
	RefundAmount    *decimal.Decimal
	Adjustments     []StockAdjustment
	History         HistoryEntry
	Event           *StatusChanged
	Now             time.Time
}

// PlanTransition computes the writes for a status change. The caller must
// have rejected same-status calls already; the planner assumes to != o.Status.
func PlanTransition(o Order, to OrderStatus, note, actorID string, now time.Time) TransitionPlan {
	return TransitionPlan{
		OrderID:         o.ID,
		ExpectedVersion: o.Version,
		From:            o.Status,
		To:              to,
		Stamp:           stampFor(to),
		Payment:         paymentFor(to),
		Adjustments:     reconcileStock(o.Items, o.Status, to),
		History: HistoryEntry{
			OrderID:   o.ID,
			Kind:      HistoryStatusChange,
			From:      o.Status,
			To:        to,
			Note:      note,
			ActorID:   actorID,
			CreatedAt: now,
		},
		Event: &StatusChanged{
			OrderID:    o.ID,
			Number:     o.Number,
			From:       o.Status,
			To:         to,
			ActorID:    actorID,
			OccurredAt: now,
		},
		Now: now,
	}
}

// PlanPartialRefund records a refund amount and restores stock for the
// refunded items only. Status, payment and timestamps stay as they are, and
// no status-changed event is emitted.
func PlanPartialRefund(o Order, amount decimal.Decimal, reason, actorID string, items []OrderItem, now time.Time) TransitionPlan {
	plan := TransitionPlan{
		OrderID:         o.ID,
		ExpectedVersion: o.Version,
		From:            o.Status,
		To:              o.Status,
		RefundAmount:    &amount,
		History: HistoryEntry{
			OrderID:   o.ID,
			Kind:      HistoryPartialRefund,
			From:      o.Status,
			To:        o.Status,
			Note:      reason,
			ActorID:   actorID,
			CreatedAt: now,
		},
		Now: now,
	}
	for _, it := range items {
		if !it.Tracked {
			continue
		}
		plan.Adjustments = append(plan.Adjustments, StockAdjustment{Ref: it.Stock, SKU: it.SKU, Delta: it.Quantity})
	}
	return plan
}

// reconcileStock is the inventory rule table. Entering a terminal status from
// a non-terminal one restores tracked stock; leaving a terminal status takes
// it back (the store clamps at zero). Every other pair leaves inventory alone.
func reconcileStock(items []OrderItem, from, to OrderStatus) []StockAdjustment {
	var sign int
	switch {
	case to.Terminal() && !from.Terminal():
		sign = 1
	case from.Terminal() && !to.Terminal():
		sign = -1
	default:
		return nil
	}

	var adj []StockAdjustment
	for _, it := range items {
		if !it.Tracked {
			continue
		}
		adj = append(adj, StockAdjustment{Ref: it.Stock, SKU: it.SKU, Delta: sign * it.Quantity})
	}
	return adj
}
