// Package worker provides the scheduled pipeline runner.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/service"
)

// PipelineRunner runs the full pipeline for one integration
type PipelineRunner interface {
	Run(ctx context.Context, integrationID string) (*service.PipelineResult, error)
}

// IntegrationLister lists the integrations to sync
type IntegrationLister interface {
	List(ctx context.Context) ([]*models.Integration, error)
}

// SyncWorker periodically runs the ingestion-and-aggregation pipeline for
// every registered integration. Integrations are processed sequentially; a
// failing integration is logged and the rest still run.
type SyncWorker struct {
	pipeline        PipelineRunner
	integrationRepo IntegrationLister
	interval        time.Duration
	runOnStart      bool
	running         bool
	mu              sync.RWMutex
	stopCh          chan struct{}
	doneCh          chan struct{}
	lastRunTime     time.Time
}

// SyncWorkerConfig holds configuration for the sync worker
type SyncWorkerConfig struct {
	Pipeline        PipelineRunner
	IntegrationRepo IntegrationLister
	Interval        time.Duration
	RunOnStart      bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg *SyncWorkerConfig) *SyncWorker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &SyncWorker{
		pipeline:        cfg.Pipeline,
		integrationRepo: cfg.IntegrationRepo,
		interval:        interval,
		runOnStart:      cfg.RunOnStart,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start starts the worker loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop stops the worker and waits for the current cycle to finish
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRunTime returns when the last sync cycle started
func (w *SyncWorker) LastRunTime() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastRunTime
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	logger := logging.FromContext(ctx).WithField("interval", w.interval.String())
	logger.Info("Sync worker started")

	if w.runOnStart {
		w.syncAll(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Info("Sync worker stopped")
			return
		case <-ctx.Done():
			logger.Info("Sync worker context cancelled")
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

// syncAll runs the pipeline for every integration
func (w *SyncWorker) syncAll(ctx context.Context) {
	w.mu.Lock()
	w.lastRunTime = time.Now()
	w.mu.Unlock()

	logger := logging.FromContext(ctx)

	integrations, err := w.integrationRepo.List(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list integrations")
		return
	}

	logger.WithField("integrations", len(integrations)).Info("Starting sync cycle")

	var succeeded, failed, locked int
	for _, integration := range integrations {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.pipeline.Run(ctx, integration.ID); err != nil {
			if isLocked(err) {
				// Another run (likely a manual sync) holds the lock.
				locked++
				continue
			}
			failed++
			logger.WithFields(map[string]interface{}{
				"integrationId": integration.ID,
				"error":         err.Error(),
			}).Error("Pipeline run failed")
			continue
		}
		succeeded++
	}

	logger.WithFields(map[string]interface{}{
		"succeeded": succeeded,
		"failed":    failed,
		"locked":    locked,
	}).Info("Sync cycle finished")
}

func isLocked(err error) bool {
	return apperrors.IsCategory(err, apperrors.CategoryConflict)
}
