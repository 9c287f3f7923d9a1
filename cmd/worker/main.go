// Package main provides the scheduled sync worker entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custobar-insights/internal/adapter"
	"github.com/custobar-insights/internal/config"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/service"
	"github.com/custobar-insights/internal/storage"
	"github.com/custobar-insights/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Starting Custobar insights sync worker")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	integrationRepo := storage.NewIntegrationRepository(postgres)
	customerRepo := storage.NewCustomerRepository(postgres)
	transactionRepo := storage.NewTransactionRepository(postgres)
	eventRepo := storage.NewEventRepository(postgres)
	metricsRepo := storage.NewMetricsRepository(postgres)

	// Initialize Custobar client and services
	custobarClient := adapter.NewCustobarClient(&cfg.Custobar)

	ingestService := service.NewIngestService(postgres, customerRepo, transactionRepo, eventRepo)
	metricsService := service.NewMetricsService(
		postgres, customerRepo, transactionRepo, eventRepo, metricsRepo,
		cfg.Metrics.LookbackDays,
	)
	activityService := service.NewActivityService(postgres, customerRepo, integrationRepo)
	pipelineService := service.NewPipelineService(
		custobarClient, ingestService, metricsService, activityService,
		integrationRepo, redis, cfg.Worker.LockTTL,
	)

	syncWorker := worker.NewSyncWorker(&worker.SyncWorkerConfig{
		Pipeline:        pipelineService,
		IntegrationRepo: integrationRepo,
		Interval:        cfg.Worker.SyncInterval,
		RunOnStart:      true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := syncWorker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start sync worker")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := syncWorker.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Worker did not stop cleanly")
	}
}
