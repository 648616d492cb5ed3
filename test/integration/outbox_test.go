package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	orderkafka "github.com/marketkit/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/marketkit/orderflow/internal/order/infrastructure/postgres"
	"github.com/marketkit/orderflow/pkg/outbox"
)

// End to end over real postgres and kafka: a staged outbox row is locked,
// dispatched, marked sent, and arrives with its headers intact.
func TestOutboxRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	if err != nil {
		t.Fatalf("container setup: %v", err)
	}
	t.Cleanup(func() { env.Teardown(context.Background()) })

	if err := orderpg.Migrate(env.PGURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, env.PGURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	const topic = "order.events"

	_, err = pool.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ('order', '42', 'order.status_changed', '{"order_id":42}', '{"source":"order-service"}', '', 'pending')`)
	if err != nil {
		t.Fatalf("stage outbox row: %v", err)
	}

	store := orderpg.NewOutboxStore(log, pool)
	events, err := store.LockBatch(ctx, "test-relay", 10, 5*time.Second)
	if err != nil {
		t.Fatalf("LockBatch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("locked %d events", len(events))
	}

	writer := orderkafka.NewWriter(env.KAddr)
	t.Cleanup(func() { _ = writer.Close() })
	dispatch := outbox.NewDispatcher(log, writer, topic)

	if err := dispatch.Dispatch(ctx, events[0]); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := store.MarkSent(ctx, []int64{events[0].ID}); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: env.KAddr,
		Topic:   topic,
		GroupID: "test-consumer",
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.FetchMessage(readCtx)
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}
	if string(msg.Key) != "42" {
		t.Fatalf("key = %q", msg.Key)
	}
	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	if eventType != "order.status_changed" {
		t.Fatalf("event_type header = %q", eventType)
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM outbox WHERE id=$1`, events[0].ID).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "sent" {
		t.Fatalf("outbox status = %q", status)
	}

	// nothing left to lock
	events, err = store.LockBatch(ctx, "test-relay", 10, 5*time.Second)
	if err != nil {
		t.Fatalf("second LockBatch: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("locked %d events after send", len(events))
	}
}

// A crashed relay must not strand its rows: once the lease lapses another
// relay picks them up, and the same goes for failed rows due a retry.
func TestOutboxLeaseReclaim(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := SetupPostgres(ctx)
	if err != nil {
		t.Fatalf("container setup: %v", err)
	}
	t.Cleanup(func() { env.Teardown(context.Background()) })

	if err := orderpg.Migrate(env.PGURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, env.PGURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	store := orderpg.NewOutboxStore(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ('order', '7', 'order.status_changed', '{"order_id":7}', '{}', '', 'pending')
		RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("stage outbox row: %v", err)
	}

	events, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	if err != nil {
		t.Fatalf("relay-a LockBatch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("relay-a locked %d events", len(events))
	}

	// relay-a still holds the lease; relay-b must see nothing
	events, err = store.LockBatch(ctx, "relay-b", 10, time.Minute)
	if err != nil {
		t.Fatalf("relay-b LockBatch: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("relay-b stole %d leased events", len(events))
	}

	// relay-a crashes and its lease lapses
	if _, err := pool.Exec(ctx, `UPDATE outbox SET lease_until = now() - interval '1 minute' WHERE id=$1`, id); err != nil {
		t.Fatal(err)
	}
	events, err = store.LockBatch(ctx, "relay-b", 10, time.Minute)
	if err != nil {
		t.Fatalf("relay-b reclaim: %v", err)
	}
	if len(events) != 1 || events[0].ID != id {
		t.Fatalf("relay-b reclaimed %d events", len(events))
	}
	var relayID string
	if err := pool.QueryRow(ctx, `SELECT relay_id FROM outbox WHERE id=$1`, id).Scan(&relayID); err != nil {
		t.Fatal(err)
	}
	if relayID != "relay-b" {
		t.Fatalf("relay_id = %q", relayID)
	}

	// a failed row comes back too, once its lease has lapsed
	if err := store.MarkFailed(ctx, id, "broker unavailable"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE outbox SET lease_until = now() - interval '1 minute' WHERE id=$1`, id); err != nil {
		t.Fatal(err)
	}
	events, err = store.LockBatch(ctx, "relay-b", 10, time.Minute)
	if err != nil {
		t.Fatalf("retry LockBatch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("failed row not retried, locked %d events", len(events))
	}

	// but not past the retry cap
	if _, err := pool.Exec(ctx, `
		UPDATE outbox SET status='failed', retry_count=10, lease_until = now() - interval '1 minute'
		WHERE id=$1`, id); err != nil {
		t.Fatal(err)
	}
	events, err = store.LockBatch(ctx, "relay-b", 10, time.Minute)
	if err != nil {
		t.Fatalf("capped LockBatch: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("exhausted row re-locked, got %d events", len(events))
	}
}
