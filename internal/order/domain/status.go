package domain

import "fmt"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// ParseOrderStatus validates a raw status value against the closed enumeration.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether the status triggers stock restoration on entry
// and stock take-back on exit.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// paymentFor returns the payment status implied by entering an order status.
// Empty means the payment record is left untouched.
func paymentFor(to OrderStatus) PaymentStatus {
	switch to {
	case StatusDelivered:
		return PaymentCompleted
	case StatusCancelled:
		return PaymentCancelled
	case StatusRefunded:
		return PaymentRefunded
	}
	return ""
}

// StampField names the one-time order timestamp written when a status is
// first reached. Values are the column names used by the store.
type StampField string

const (
	StampNone        StampField = ""
	StampShippedAt   StampField = "shipped_at"
	StampDeliveredAt StampField = "delivered_at"
	StampCancelledAt StampField = "cancelled_at"
)

func stampFor(to OrderStatus) StampField {
	switch to {
	case StatusShipped:
		return StampShippedAt
	case StatusDelivered:
		return StampDeliveredAt
	case StatusCancelled:
		return StampCancelledAt
	}
	return StampNone
}
