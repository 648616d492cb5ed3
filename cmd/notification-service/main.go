package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/marketkit/orderflow/internal/config"
	"github.com/marketkit/orderflow/internal/notification/application"
	notifkafka "github.com/marketkit/orderflow/internal/notification/infrastructure/kafka"
	"github.com/marketkit/orderflow/pkg/idempotency"
	"github.com/marketkit/orderflow/pkg/logging"
	"github.com/marketkit/orderflow/pkg/shutdown"
	"github.com/marketkit/orderflow/pkg/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New("notification-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "notification-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	svc := application.NewService(log, application.NewLogSender(log))
	consumer := notifkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OrderTopic, cfg.Group, svc, idem)

	log.Info("notification-service consuming", "topic", cfg.OrderTopic, "group", cfg.Group)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("notification-service shutdown complete")
}
