package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marketkit/orderflow/internal/order/application"
	"github.com/marketkit/orderflow/internal/order/domain"
	"github.com/marketkit/orderflow/test/integration"
)

// Spins a real postgres via testcontainers; skipped in -short runs.
func setupRepo(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := integration.SetupPostgres(ctx)
	if err != nil {
		t.Fatalf("container setup: %v", err)
	}
	t.Cleanup(func() { env.Teardown(context.Background()) })

	if err := Migrate(env.PGURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, env.PGURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool), pool
}

func seedOrder(t *testing.T, pool *pgxpool.Pool, status domain.OrderStatus, onHand int) int64 {
	t.Helper()
	ctx := context.Background()

	var productID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, track_quantity, stock_quantity)
		VALUES ('TEE-RED', 'Red Tee', true, $1) RETURNING id`, onHand).Scan(&productID)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	var orderID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO orders (order_number, status, subtotal, total)
		VALUES ('ORD-1001', $1, '100.00', '100.00') RETURNING id`, status).Scan(&orderID)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, sku, quantity, unit_price)
		VALUES ($1, $2, 'TEE-RED', 3, '33.34')`, orderID, productID)
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO payments (order_id, amount, status) VALUES ($1, '100.00', 'pending')`, orderID)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return orderID
}

func TestApplyTransitionCancelPersistsEverything(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	orderID := seedOrder(t, pool, domain.StatusPending, 10)

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(o.Items) != 1 || !o.Items[0].Tracked {
		t.Fatalf("loaded items = %+v", o.Items)
	}

	plan := domain.PlanTransition(o, domain.StatusCancelled, "customer asked", "admin-1", time.Now().UTC())
	updated, applied, err := repo.ApplyTransition(ctx, plan, &application.OutboxMessage{
		Type:    domain.EventStatusChanged,
		Payload: []byte(`{"order_id":1}`),
		Headers: map[string]string{"source": "order-service"},
	})
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if len(applied) != 1 || applied[0].Applied != 3 || applied[0].OnHand != 13 {
		t.Fatalf("applied = %+v", applied)
	}
	// the returned order is the row as committed by this transaction
	if updated.Status != domain.StatusCancelled || updated.Version != o.Version+1 || updated.CancelledAt == nil {
		t.Fatalf("returned order = status %s version %d", updated.Status, updated.Version)
	}

	got, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get after: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.Version != o.Version+1 {
		t.Fatalf("order after = status %s version %d", got.Status, got.Version)
	}
	if got.CancelledAt == nil {
		t.Fatal("cancelled_at not stamped")
	}
	if got.Payment.Status != domain.PaymentCancelled {
		t.Fatalf("payment = %s", got.Payment.Status)
	}

	var history, outboxRows int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM order_status_history WHERE order_id=$1`, orderID).Scan(&history); err != nil {
		t.Fatal(err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE aggregate_id=$1::text AND status='pending'`, orderID).Scan(&outboxRows); err != nil {
		t.Fatal(err)
	}
	if history != 1 || outboxRows != 1 {
		t.Fatalf("history=%d outbox=%d", history, outboxRows)
	}
}

func TestApplyTransitionVersionConflictRollsBack(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	orderID := seedOrder(t, pool, domain.StatusPending, 10)

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// another admin ships the order in between
	stale := domain.PlanTransition(o, domain.StatusCancelled, "", "admin-1", time.Now().UTC())
	if _, _, err := repo.ApplyTransition(ctx, domain.PlanTransition(o, domain.StatusShipped, "", "admin-2", time.Now().UTC()), nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, _, err = repo.ApplyTransition(ctx, stale, nil)
	if !errors.Is(err, application.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}

	// the losing transition must leave no trace
	var onHand int
	if err := pool.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE sku='TEE-RED'`).Scan(&onHand); err != nil {
		t.Fatal(err)
	}
	if onHand != 10 {
		t.Fatalf("on-hand = %d, stale cancel leaked stock", onHand)
	}
	got, _ := repo.Get(ctx, orderID)
	if got.Status != domain.StatusShipped {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestApplyTransitionClampsReversalAtZero(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	orderID := seedOrder(t, pool, domain.StatusCancelled, 2)

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	plan := domain.PlanTransition(o, domain.StatusProcessing, "", "admin-1", time.Now().UTC())
	_, applied, err := repo.ApplyTransition(ctx, plan, nil)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if len(applied) != 1 || applied[0].Requested != -3 || applied[0].Applied != -2 || applied[0].OnHand != 0 {
		t.Fatalf("applied = %+v", applied)
	}
}

func TestApplyTransitionRecordsRefundAmount(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	orderID := seedOrder(t, pool, domain.StatusDelivered, 10)

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	amount := decimal.RequireFromString("40.00")
	plan := domain.PlanPartialRefund(o, amount, "one item damaged", "admin-2", o.Items, time.Now().UTC())

	if _, _, err := repo.ApplyTransition(ctx, plan, nil); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	got, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get after: %v", err)
	}
	if got.Status != domain.StatusDelivered || !got.RefundAmount.Equal(amount) {
		t.Fatalf("after partial refund: status=%s refund=%s", got.Status, got.RefundAmount)
	}

	var kind string
	if err := pool.QueryRow(ctx, `SELECT kind FROM order_status_history WHERE order_id=$1`, orderID).Scan(&kind); err != nil {
		t.Fatal(err)
	}
	if kind != string(domain.HistoryPartialRefund) {
		t.Fatalf("history kind = %s", kind)
	}
}

func TestApplyTransitionToleratesMissingPaymentRow(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	orderID := seedOrder(t, pool, domain.StatusPending, 10)

	if _, err := pool.Exec(ctx, `DELETE FROM payments WHERE order_id=$1`, orderID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}

	o, err := repo.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	plan := domain.PlanTransition(o, domain.StatusCancelled, "", "admin-1", time.Now().UTC())

	// the payment sync touching zero rows is logged, not fatal
	updated, _, err := repo.ApplyTransition(ctx, plan, nil)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if updated.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", updated.Status)
	}
}
