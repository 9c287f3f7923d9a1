package service

import (
	"context"
	"net/url"
	"time"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/types"
)

// Pipeline stage names, in execution order.
const (
	StageFetchEvents        = "fetch_events"
	StageIngestEvents       = "ingest_events"
	StageFetchCustomers     = "fetch_customers"
	StageIngestCustomers    = "ingest_customers"
	StageFetchSales         = "fetch_sales"
	StageIngestTransactions = "ingest_transactions"
	StageOverallMetrics     = "overall_metrics"
	StageSegmentedMetrics   = "segmented_metrics"
	StageActivityUpdate     = "activity_update"
)

// CustobarFetcher fetches raw record batches from the Custobar API
type CustobarFetcher interface {
	FetchCustomers(ctx context.Context, apiKey string, params url.Values) ([]types.CustomerRecord, error)
	FetchSales(ctx context.Context, apiKey string, params url.Values) ([]types.SaleRecord, error)
	FetchEvents(ctx context.Context, apiKey string, params url.Values) ([]types.EventRecord, error)
}

// Ingestor writes fetched records into the store
type Ingestor interface {
	UpsertCustomers(ctx context.Context, integrationID string, records []types.CustomerRecord) (*IngestResult, error)
	UpsertTransactions(ctx context.Context, integrationID string, records []types.SaleRecord) (*IngestResult, error)
	InsertEvents(ctx context.Context, integrationID string, records []types.EventRecord) (*IngestResult, error)
}

// MetricsComputer recomputes the daily metric snapshots
type MetricsComputer interface {
	ComputeOverallMetrics(ctx context.Context, integrationID string) (*models.DailyMetrics, error)
	ComputeSegmentedMetrics(ctx context.Context, integrationID string) ([]*models.SegmentedMetrics, error)
}

// ActivityUpdater refreshes derived customer activity dates
type ActivityUpdater interface {
	UpdateForIntegration(ctx context.Context, integrationID string) (*ActivityResult, error)
}

// RunLocker guards against concurrent pipeline runs for the same
// integration
type RunLocker interface {
	AcquireRunLock(ctx context.Context, integrationID string, ttl time.Duration) (string, error)
	ReleaseRunLock(ctx context.Context, integrationID, token string) error
}

// IntegrationGetter loads the integration being synced
type IntegrationGetter interface {
	GetByID(ctx context.Context, id string) (*models.Integration, error)
}

// PipelineResult summarizes one pipeline run
type PipelineResult struct {
	IntegrationID   string                   `json:"integrationId"`
	StagesCompleted []string                 `json:"stagesCompleted"`
	Ingest          map[string]*IngestResult `json:"ingest"`
	StartedAt       time.Time                `json:"startedAt"`
	FinishedAt      time.Time                `json:"finishedAt"`
}

// PipelineService orchestrates a full sync for one integration: fetch and
// ingest events, customers and sales, recompute the daily metric snapshots,
// then refresh derived activity dates. Stages run strictly in order and the
// first failing stage aborts the run; completed stages stay committed.
type PipelineService struct {
	fetcher         CustobarFetcher
	ingestor        Ingestor
	metrics         MetricsComputer
	activity        ActivityUpdater
	integrationRepo IntegrationGetter
	locker          RunLocker
	lockTTL         time.Duration
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(
	fetcher CustobarFetcher,
	ingestor Ingestor,
	metrics MetricsComputer,
	activity ActivityUpdater,
	integrationRepo IntegrationGetter,
	locker RunLocker,
	lockTTL time.Duration,
) *PipelineService {
	return &PipelineService{
		fetcher:         fetcher,
		ingestor:        ingestor,
		metrics:         metrics,
		activity:        activity,
		integrationRepo: integrationRepo,
		locker:          locker,
		lockTTL:         lockTTL,
	}
}

// Run executes the full pipeline for one integration. A second Run for the
// same integration while one is in flight fails immediately with a conflict
// error instead of queueing.
func (s *PipelineService) Run(ctx context.Context, integrationID string) (*PipelineResult, error) {
	integration, err := s.integrationRepo.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	token, err := s.locker.AcquireRunLock(ctx, integrationID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperrors.NewPipelineLockedError(integrationID)
	}
	defer func() {
		if err := s.locker.ReleaseRunLock(context.WithoutCancel(ctx), integrationID, token); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to release run lock")
		}
	}()

	logger := logging.FromContext(ctx).WithField("integrationId", integrationID)
	logger.Info("Starting pipeline run")

	result := &PipelineResult{
		IntegrationID: integrationID,
		Ingest:        make(map[string]*IngestResult),
		StartedAt:     time.Now().UTC(),
	}

	var events []types.EventRecord
	if err := s.runStage(result, StageFetchEvents, func() error {
		var err error
		events, err = s.fetcher.FetchEvents(ctx, integration.APIKey, nil)
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageIngestEvents, func() error {
		ingest, err := s.ingestor.InsertEvents(ctx, integrationID, events)
		result.Ingest["events"] = ingest
		return err
	}); err != nil {
		return result, err
	}

	var customers []types.CustomerRecord
	if err := s.runStage(result, StageFetchCustomers, func() error {
		var err error
		customers, err = s.fetcher.FetchCustomers(ctx, integration.APIKey, nil)
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageIngestCustomers, func() error {
		ingest, err := s.ingestor.UpsertCustomers(ctx, integrationID, customers)
		result.Ingest["customers"] = ingest
		return err
	}); err != nil {
		return result, err
	}

	var sales []types.SaleRecord
	if err := s.runStage(result, StageFetchSales, func() error {
		var err error
		sales, err = s.fetcher.FetchSales(ctx, integration.APIKey, nil)
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageIngestTransactions, func() error {
		ingest, err := s.ingestor.UpsertTransactions(ctx, integrationID, sales)
		result.Ingest["sales"] = ingest
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageOverallMetrics, func() error {
		_, err := s.metrics.ComputeOverallMetrics(ctx, integrationID)
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageSegmentedMetrics, func() error {
		_, err := s.metrics.ComputeSegmentedMetrics(ctx, integrationID)
		return err
	}); err != nil {
		return result, err
	}

	if err := s.runStage(result, StageActivityUpdate, func() error {
		_, err := s.activity.UpdateForIntegration(ctx, integrationID)
		return err
	}); err != nil {
		return result, err
	}

	result.FinishedAt = time.Now().UTC()
	logger.WithFields(map[string]interface{}{
		"stages":   len(result.StagesCompleted),
		"duration": result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Pipeline run finished")

	return result, nil
}

// runStage executes one stage, recording it as completed on success and
// wrapping the failure with the stage name and the stages that did complete
// otherwise
func (s *PipelineService) runStage(result *PipelineResult, stage string, fn func() error) error {
	if err := fn(); err != nil {
		result.FinishedAt = time.Now().UTC()
		return apperrors.NewStageError(stage, result.StagesCompleted, err)
	}
	result.StagesCompleted = append(result.StagesCompleted, stage)
	return nil
}
