// Package main provides the API server entry point for the insights service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custobar-insights/internal/adapter"
	"github.com/custobar-insights/internal/api"
	"github.com/custobar-insights/internal/config"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/service"
	"github.com/custobar-insights/internal/storage"
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
	logger.Info("Starting Custobar insights API server")

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

	// Initialize API server
	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MetricsCacheTTL: 5 * time.Minute,
		},
		pipelineService,
		metricsService,
		metricsRepo,
		integrationRepo,
		redis,
		postgres,
	)

	// Start server in a goroutine so we can handle shutdown signals
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.WithError(err).Fatal("API server failed")
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
