package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketkit/orderflow/internal/order/domain"
)

type orderResp struct {
	ID           int64           `json:"id"`
	Number       string          `json:"order_number"`
	Status       string          `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount_amount"`
	Shipping     decimal.Decimal `json:"shipping_amount"`
	Tax          decimal.Decimal `json:"tax_amount"`
	Total        decimal.Decimal `json:"total"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	ShippedAt    *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	Items        []itemResp      `json:"items"`
	Payment      paymentResp     `json:"payment"`
}

type itemResp struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	EntityID  int64           `json:"entity_id"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Tracked   bool            `json:"tracked"`
}

type paymentResp struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

func toOrderResp(o domain.Order) orderResp {
	resp := orderResp{
		ID:           o.ID,
		Number:       o.Number,
		Status:       string(o.Status),
		Subtotal:     o.Subtotal,
		Discount:     o.Discount,
		Shipping:     o.Shipping,
		Tax:          o.Tax,
		Total:        o.Total,
		RefundAmount: o.RefundAmount,
		CreatedAt:    o.CreatedAt,
		ShippedAt:    o.ShippedAt,
		DeliveredAt:  o.DeliveredAt,
		CancelledAt:  o.CancelledAt,
		Payment: paymentResp{
			Status: string(o.Payment.Status),
			Amount: o.Payment.Amount,
		},
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, itemResp{
			ID:        it.ID,
			Kind:      string(it.Stock.Kind),
			EntityID:  it.Stock.ID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Tracked:   it.Tracked,
		})
	}
	return resp
}
