package domain

import "time"

// EventStatusChanged is the outbox/kafka event type for reconciler-driven
// status changes. Collaborators (notification, analytics) key off it.
const EventStatusChanged = "order.status_changed"

type StatusChanged struct {
	OrderID    int64       `json:"order_id"`
	Number     string      `json:"order_number"`
	From       OrderStatus `json:"from_status"`
	To         OrderStatus `json:"to_status"`
	ActorID    string      `json:"actor_id"`
	OccurredAt time.Time   `json:"occurred_at"`
}
