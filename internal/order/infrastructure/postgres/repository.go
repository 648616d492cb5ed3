package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketkit/orderflow/internal/order/application"
	"github.com/marketkit/orderflow/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so loads can run
// standalone or inside an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.getOrder(ctx, r.pool, id)
}

func (r *Repository) getOrder(ctx context.Context, q querier, id int64) (domain.Order, error) {
	var o domain.Order
	err := q.QueryRow(ctx, `
		SELECT id, order_number, status, subtotal, discount_amount, shipping_amount,
		       tax_amount, total, refund_amount, version, created_at, updated_at,
		       shipped_at, delivered_at, cancelled_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.Number, &o.Status, &o.Subtotal, &o.Discount, &o.Shipping,
			&o.Tax, &o.Total, &o.RefundAmount, &o.Version, &o.CreatedAt, &o.UpdatedAt,
			&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	if o.Items, err = r.items(ctx, q, id); err != nil {
		return domain.Order{}, err
	}

	err = q.QueryRow(ctx, `
		SELECT id, order_id, amount, status, created_at, updated_at
		FROM payments WHERE order_id=$1`, id).
		Scan(&o.Payment.ID, &o.Payment.OrderID, &o.Payment.Amount, &o.Payment.Status,
			&o.Payment.CreatedAt, &o.Payment.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) items(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT oi.id, oi.product_id, oi.variant_id, oi.sku, oi.quantity, oi.unit_price,
		       COALESCE(p.track_quantity, v.track_quantity, false)
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		LEFT JOIN product_variants v ON v.id = oi.variant_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var productID, variantID *int64
		if err := rows.Scan(&it.ID, &productID, &variantID, &it.SKU, &it.Quantity, &it.UnitPrice, &it.Tracked); err != nil {
			return nil, err
		}
		switch {
		case productID != nil:
			it.Stock = domain.StockRef{Kind: domain.StockProduct, ID: *productID}
		case variantID != nil:
			it.Stock = domain.StockRef{Kind: domain.StockVariant, ID: *variantID}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ApplyTransition persists a plan all-or-nothing. The order row is locked and
// its version re-checked inside the transaction, so two admins racing on the
// same order cannot both apply their side effects.
func (r *Repository) ApplyTransition(ctx context.Context, plan domain.TransitionPlan, msg *application.OutboxMessage) (domain.Order, []domain.AppliedAdjustment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var status domain.OrderStatus
	var version int64
	err = tx.QueryRow(ctx, `SELECT status, version FROM orders WHERE id=$1 FOR UPDATE`, plan.OrderID).
		Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, nil, application.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, nil, err
	}
	if version != plan.ExpectedVersion || status != plan.From {
		return domain.Order{}, nil, application.ErrConcurrentModification
	}

	if err := r.updateOrder(ctx, tx, plan); err != nil {
		return domain.Order{}, nil, err
	}

	applied, err := r.adjustStock(ctx, tx, plan)
	if err != nil {
		return domain.Order{}, nil, err
	}

	if plan.Payment != "" {
		ct, err := tx.Exec(ctx, `UPDATE payments SET status=$2, updated_at=$3 WHERE order_id=$1`,
			plan.OrderID, plan.Payment, plan.Now)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if ct.RowsAffected() == 0 {
			// orders own exactly one payment; a missing row means seed drift
			r.log.Warn("payment status sync affected no rows", "order_id", plan.OrderID, "status", plan.Payment)
		}
	}

	h := plan.History
	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, kind, from_status, to_status, note, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.OrderID, h.Kind, h.From, h.To, h.Note, h.ActorID, h.CreatedAt)
	if err != nil {
		return domain.Order{}, nil, err
	}

	if msg != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
			VALUES ('order',$1,$2,$3,$4,$5,'pending')`,
			strconv.FormatInt(plan.OrderID, 10), msg.Type, msg.Payload, msg.Headers, msg.Traceparent)
		if err != nil {
			return domain.Order{}, nil, err
		}
	}

	// read the result inside the transaction so the caller sees exactly the
	// state this transition produced, not a later concurrent change
	updated, err := r.getOrder(ctx, tx, plan.OrderID)
	if err != nil {
		return domain.Order{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, nil, err
	}
	return updated, applied, nil
}

func (r *Repository) updateOrder(ctx context.Context, tx pgx.Tx, plan domain.TransitionPlan) error {
	set := `status=$2, version=version+1, updated_at=$3`
	args := []any{plan.OrderID, plan.To, plan.Now}

	if plan.RefundAmount != nil {
		args = append(args, *plan.RefundAmount)
		set += fmt.Sprintf(`, refund_amount=$%d`, len(args))
	}
	switch plan.Stamp {
	case domain.StampNone:
	case domain.StampShippedAt, domain.StampDeliveredAt, domain.StampCancelledAt:
		// one-time: COALESCE keeps an already-set timestamp
		args = append(args, plan.Now)
		set += fmt.Sprintf(`, %s=COALESCE(%s,$%d)`, plan.Stamp, plan.Stamp, len(args))
	default:
		return fmt.Errorf("unknown stamp field %q", plan.Stamp)
	}

	_, err := tx.Exec(ctx, `UPDATE orders SET `+set+` WHERE id=$1`, args...)
	return err
}

// adjustStock applies each delta as an atomic in-row increment, clamped at
// zero, and reports before/after so callers see the post-clamp effect.
func (r *Repository) adjustStock(ctx context.Context, tx pgx.Tx, plan domain.TransitionPlan) ([]domain.AppliedAdjustment, error) {
	applied := make([]domain.AppliedAdjustment, 0, len(plan.Adjustments))
	for _, adj := range plan.Adjustments {
		table, ok := stockTable(adj.Ref.Kind)
		if !ok {
			continue
		}
		var before, after int
		err := tx.QueryRow(ctx, `
			WITH prev AS (
				SELECT id, stock_quantity FROM `+table+`
				WHERE id=$1 AND track_quantity
				FOR UPDATE
			)
			UPDATE `+table+` t
			SET stock_quantity = GREATEST(prev.stock_quantity + $2, 0), updated_at=$3
			FROM prev WHERE t.id = prev.id
			RETURNING prev.stock_quantity, t.stock_quantity`,
			adj.Ref.ID, adj.Delta, plan.Now).
			Scan(&before, &after)
		if errors.Is(err, pgx.ErrNoRows) {
			// tracking switched off or the row vanished since the order loaded
			r.log.Warn("stock adjustment skipped", "kind", adj.Ref.Kind, "id", adj.Ref.ID, "sku", adj.SKU)
			continue
		}
		if err != nil {
			return nil, err
		}
		applied = append(applied, domain.AppliedAdjustment{
			Ref:       adj.Ref,
			SKU:       adj.SKU,
			Requested: adj.Delta,
			Applied:   after - before,
			OnHand:    after,
		})
	}
	return applied, nil
}

func stockTable(kind domain.StockKind) (string, bool) {
	switch kind {
	case domain.StockProduct:
		return "products", true
	case domain.StockVariant:
		return "product_variants", true
	}
	return "", false
}
