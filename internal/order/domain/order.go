package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockKind string

const (
	StockProduct StockKind = "product"
	StockVariant StockKind = "variant"
)

// StockRef identifies the inventory-trackable entity behind an order item:
// a product or one of its variants, never both.
type StockRef struct {
	Kind StockKind `json:"kind"`
	ID   int64     `json:"id"`
}

type Order struct {
	ID           int64
	Number       string
	Status       OrderStatus
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Shipping     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	RefundAmount decimal.Decimal
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	Items        []OrderItem
	Payment      Payment
}

// OrderItem captures quantity and unit price at order time. Tracked mirrors
// the entity's track_quantity flag as of the load, so transition plans can be
// computed without touching the catalog again.
type OrderItem struct {
	ID        int64
	Stock     StockRef
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
	Tracked   bool
}

type Payment struct {
	ID        int64
	OrderID   int64
	Amount    decimal.Decimal
	Status    PaymentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type HistoryKind string

const (
	HistoryStatusChange  HistoryKind = "status_change"
	HistoryPartialRefund HistoryKind = "partial_refund"
)

// HistoryEntry is append-only. The order's current status is always the
// to-status of the latest status_change entry.
type HistoryEntry struct {
	ID        int64
	OrderID   int64
	Kind      HistoryKind
	From      OrderStatus
	To        OrderStatus
	Note      string
	ActorID   string
	CreatedAt time.Time
}
