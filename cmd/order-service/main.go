package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/marketkit/orderflow/internal/config"
	"github.com/marketkit/orderflow/internal/order/application"
	orderhttp "github.com/marketkit/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/marketkit/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/marketkit/orderflow/internal/order/infrastructure/postgres"
	"github.com/marketkit/orderflow/pkg/idempotency"
	"github.com/marketkit/orderflow/pkg/logging"
	"github.com/marketkit/orderflow/pkg/outbox"
	"github.com/marketkit/orderflow/pkg/shutdown"
	"github.com/marketkit/orderflow/pkg/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New("order-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := orderpg.Migrate(cfg.PostgresURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	repo := orderpg.NewRepository(log, pool)
	store := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderTopic)
	relay := outbox.NewRelay(log, store, dispatch, "order-service-relay")

	svc := application.NewService(log, repo)
	handler := orderhttp.NewHandler(log, svc)

	r := chi.NewRouter()
	r.Use(idempotency.Middleware(idem, log))
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-service shutdown complete")
}
