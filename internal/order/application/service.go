package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/marketkit/orderflow/internal/order/domain"
	"github.com/marketkit/orderflow/pkg/tracing"
)

const maxNoteLen = 500

// Service is the only write path for order status, order-driven inventory
// adjustment, payment-status sync and refund bookkeeping.
type Service struct {
	log  *slog.Logger
	repo OrderRepository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo OrderRepository) *Service {
	return &Service{
		log:  log,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// TransitionResult reports the updated order and what actually happened to
// inventory, so the admin UI can show e.g. "restored 3 units of TEE-RED".
type TransitionResult struct {
	Order       domain.Order
	Adjustments []domain.AppliedAdjustment
	Changed     bool
}

// Transition moves the order to toStatus and applies all dependent effects
// atomically. A same-status call succeeds without touching anything.
func (s *Service) Transition(ctx context.Context, orderID int64, toStatus, note, actorID string) (TransitionResult, error) {
	to, err := domain.ParseOrderStatus(toStatus)
	if err != nil {
		return TransitionResult{}, ErrInvalidStatus
	}
	if utf8.RuneCountInString(note) > maxNoteLen {
		return TransitionResult{}, ErrNoteTooLong
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	if o.Status == to {
		return TransitionResult{Order: o, Changed: false}, nil
	}

	plan := domain.PlanTransition(o, to, note, actorID, s.now())
	return s.apply(ctx, orderID, plan)
}

// ProcessRefund records a refund against a delivered order. A full-amount
// refund closes the order through the refunded transition; a partial refund
// keeps the order delivered and restores stock for the refunded items only.
func (s *Service) ProcessRefund(ctx context.Context, orderID int64, amount decimal.Decimal, reason, actorID string, itemIDs []int64) (TransitionResult, error) {
	if strings.TrimSpace(reason) == "" {
		return TransitionResult{}, ErrMissingReason
	}
	if utf8.RuneCountInString(reason) > maxNoteLen {
		return TransitionResult{}, ErrNoteTooLong
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	if o.Status != domain.StatusDelivered {
		return TransitionResult{}, ErrInvalidOrderState
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(o.Total) {
		return TransitionResult{}, ErrInvalidRefundAmount
	}
	items, err := pickItems(o.Items, itemIDs)
	if err != nil {
		return TransitionResult{}, err
	}

	var plan domain.TransitionPlan
	if amount.Equal(o.Total) {
		// Full refund: the terminal-entry rule already restores every tracked
		// item, so the item list adds nothing here.
		plan = domain.PlanTransition(o, domain.StatusRefunded, reason, actorID, s.now())
		plan.RefundAmount = &amount
	} else {
		plan = domain.PlanPartialRefund(o, amount, reason, actorID, items, s.now())
	}
	return s.apply(ctx, orderID, plan)
}

// Get is the read side for the admin order-detail screen.
func (s *Service) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) apply(ctx context.Context, orderID int64, plan domain.TransitionPlan) (TransitionResult, error) {
	var msg *OutboxMessage
	if plan.Event != nil {
		payload, err := json.Marshal(plan.Event)
		if err != nil {
			return TransitionResult{}, err
		}
		msg = &OutboxMessage{
			Type:        domain.EventStatusChanged,
			Payload:     payload,
			Headers:     map[string]string{"source": "order-service"},
			Traceparent: tracing.TraceparentFromContext(ctx),
		}
	}

	updated, applied, err := s.repo.ApplyTransition(ctx, plan, msg)
	if err != nil {
		return TransitionResult{}, err
	}

	s.log.Info("order transition applied",
		"order_id", orderID,
		"from", plan.From,
		"to", plan.To,
		"kind", plan.History.Kind,
		"actor_id", plan.History.ActorID,
		"adjustments", len(applied),
	)
	return TransitionResult{Order: updated, Adjustments: applied, Changed: plan.From != plan.To}, nil
}

func pickItems(items []domain.OrderItem, ids []int64) ([]domain.OrderItem, error) {
	byID := make(map[int64]domain.OrderItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	picked := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, ErrInvalidRefundItems
		}
		picked = append(picked, it)
	}
	return picked, nil
}
