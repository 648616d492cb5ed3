package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketkit/orderflow/internal/order/application"
	"github.com/marketkit/orderflow/internal/order/domain"
)

// OrderService is what the admin-facing routes need from the reconciler.
type OrderService interface {
	Get(ctx context.Context, orderID int64) (domain.Order, error)
	Transition(ctx context.Context, orderID int64, toStatus, note, actorID string) (application.TransitionResult, error)
	ProcessRefund(ctx context.Context, orderID int64, amount decimal.Decimal, reason, actorID string, itemIDs []int64) (application.TransitionResult, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.transition)
	r.Post("/orders/{id}/refund", h.refund)
	return r
}

type transitionReq struct {
	Status  string `json:"status"`
	Note    string `json:"note"`
	ActorID string `json:"actor_id"`
}

type refundReq struct {
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
	ActorID string          `json:"actor_id"`
	ItemIDs []int64         `json:"item_ids"`
}

type transitionResp struct {
	Order       orderResp                  `json:"order"`
	Adjustments []domain.AppliedAdjustment `json:"adjustments"`
	Changed     bool                       `json:"changed"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TransitionOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := h.service.Transition(ctx, id, req.Status, req.Note, req.ActorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResp{
		Order:       toOrderResp(res.Order),
		Adjustments: res.Adjustments,
		Changed:     res.Changed,
	})
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RefundOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := h.service.ProcessRefund(ctx, id, req.Amount, req.Reason, req.ActorID, req.ItemIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResp{
		Order:       toOrderResp(res.Order),
		Adjustments: res.Adjustments,
		Changed:     res.Changed,
	})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

type errorResp struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	retryable := false
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrConcurrentModification):
		status = http.StatusConflict
		retryable = true
	case errors.Is(err, application.ErrInvalidOrderState):
		status = http.StatusConflict
	case errors.Is(err, application.ErrInvalidStatus),
		errors.Is(err, application.ErrInvalidRefundAmount),
		errors.Is(err, application.ErrMissingReason),
		errors.Is(err, application.ErrNoteTooLong),
		errors.Is(err, application.ErrInvalidRefundItems):
		status = http.StatusUnprocessableEntity
	default:
		h.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResp{Error: err.Error(), Retryable: retryable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
