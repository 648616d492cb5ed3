package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketkit/orderflow/internal/order/domain"
)

// Notification is what the customer-facing channel receives when an order
// changes status.
type Notification struct {
	OrderID    int64
	Number     string
	From       domain.OrderStatus
	To         domain.OrderStatus
	OccurredAt time.Time
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type Service struct {
	log    *slog.Logger
	sender Sender
}

func NewService(log *slog.Logger, sender Sender) *Service {
	return &Service{log: log, sender: sender}
}

func (s *Service) HandleStatusChanged(ctx context.Context, ev domain.StatusChanged) error {
	n := Notification{
		OrderID:    ev.OrderID,
		Number:     ev.Number,
		From:       ev.From,
		To:         ev.To,
		OccurredAt: ev.OccurredAt,
	}
	if err := s.sender.Send(ctx, n); err != nil {
		return err
	}
	s.log.Info("status notification queued", "order_id", ev.OrderID, "to", ev.To)
	return nil
}

// LogSender stands in for the real mailer, which lives outside this service.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("notify customer",
		"order_number", n.Number,
		"from", n.From,
		"to", n.To,
		"occurred_at", n.OccurredAt,
	)
	return nil
}
