package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"budgetgrid/internal/amqp"
	"budgetgrid/internal/anomaly"
	"budgetgrid/internal/cache"
	"budgetgrid/internal/config"
	"budgetgrid/internal/engine"
	applog "budgetgrid/internal/log"
	"budgetgrid/internal/services"
	"budgetgrid/internal/storage"
	"budgetgrid/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentApp})
	applog.SetDefault(logger)

	logger.Info("Starting budgetd")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPTransactionsQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	snapshots := cache.NewSnapshotCache(cfg.CacheSize, cfg.CacheTTL)

	service := services.NewPlanService(repo,
		services.WithPublisher(amqpClient),
		services.WithEngine(engine.New(
			engine.WithPolicy(cfg.Policy()),
			engine.WithThresholds(cfg.Thresholds()),
		)),
		services.WithDetector(anomaly.NewDetector(cfg.AnomalyConfig())),
		services.WithThresholds(cfg.Thresholds()),
		services.WithSnapshotCache(snapshots),
		services.WithLogger(logger),
	)

	txWorker := worker.NewTransactionWorker(service, cfg.RecordMaxRetries, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeTransactions(ctx, txWorker.HandleTransaction)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.CacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if cleaned := snapshots.CleanExpired(); cleaned > 0 {
					logger.Debug("Cleaned expired snapshots", "removed", cleaned)
				}
			}
		}
	})

	logger.Info("budgetd running",
		"queue", cfg.AMQPTransactionsQueue,
		"exchange", cfg.AMQPExchange,
		"db_path", cfg.SQLiteDBPath)

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("budgetd stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("budgetd shut down cleanly")
}
