package integration

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Env is a disposable postgres+kafka pair for integration tests.
type Env struct {
	PG     *postgres.PostgresContainer
	Kafka  *kafka.KafkaContainer
	PGURL  string
	KAddr  []string
	cancel context.CancelFunc
}

func Setup(ctx context.Context) (*Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)

	pgC, pgURL, err := startPostgres(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("orderflow-test"),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	brokers, err := kafkaC.Brokers(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Env{PG: pgC, Kafka: kafkaC, PGURL: pgURL, KAddr: brokers, cancel: cancel}, nil
}

// PGEnv is a postgres-only environment for repository tests.
type PGEnv struct {
	PG     *postgres.PostgresContainer
	PGURL  string
	cancel context.CancelFunc
}

func SetupPostgres(ctx context.Context) (*PGEnv, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)

	pgC, pgURL, err := startPostgres(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	return &PGEnv{PG: pgC, PGURL: pgURL, cancel: cancel}, nil
}

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orderflow"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}
	return pgC, pgURL, nil
}

func (e *Env) Teardown(ctx context.Context) {
	e.cancel()
	_ = e.Kafka.Terminate(ctx)
	_ = e.PG.Terminate(ctx)
}

func (e *PGEnv) Teardown(ctx context.Context) {
	e.cancel()
	_ = e.PG.Terminate(ctx)
}
