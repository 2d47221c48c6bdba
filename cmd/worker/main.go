// Package main is the entry point for the pestctl background worker.
// It relays outbox events to Redis and runs periodic housekeeping.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pestctl/internal/config"
	"pestctl/internal/domain/batch"
	"pestctl/internal/infrastructure/messaging"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/internal/infrastructure/storage/postgres/register_repo"
	"pestctl/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting pestctl worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	txManager := postgres.NewTxManager(pool)

	rdb, err := messaging.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	publisher := messaging.NewStreamPublisher(rdb, cfg.OutboxStream)

	worker := NewWorker(Config{
		OutboxInterval:      cfg.OutboxInterval,
		OutboxRetention:     cfg.OutboxRetention,
		ExpirySweepInterval: cfg.ExpirySweepInterval,
		HousekeepingEvery:   time.Hour,
	}, Deps{
		Relay:       postgres.NewOutboxRelay(txManager, cfg.OutboxBatchSize, publisher),
		Batches:     batch.NewStore(register_repo.NewBatchRepo(txManager)),
		Idempotency: postgres.NewIdempotencyStore(txManager, 24*time.Hour),
	}, log)

	if err := worker.Run(ctx); err != nil {
		log.Errorw("worker failed", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
