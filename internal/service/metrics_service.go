package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/storage"
)

// MetricsCustomerStore provides the customer aggregates the metric
// computation reads
type MetricsCustomerStore interface {
	Count(ctx context.Context, integrationID string, filter storage.CustomerFilter) (int64, error)
	DistinctSegmentValues(ctx context.Context, integrationID, field string) ([]string, error)
}

// MetricsTransactionStore provides the transaction aggregates the metric
// computation reads
type MetricsTransactionStore interface {
	Count(ctx context.Context, integrationID string, filter storage.TransactionFilter) (int64, error)
	SumRevenue(ctx context.Context, integrationID string, filter storage.TransactionFilter) (decimal.Decimal, error)
}

// MetricsEventStore provides the event aggregates the metric computation
// reads
type MetricsEventStore interface {
	Count(ctx context.Context, integrationID string, filter storage.EventFilter) (int64, error)
}

// MetricsStore persists computed metric snapshots
type MetricsStore interface {
	UpsertDaily(ctx context.Context, q storage.Querier, m *models.DailyMetrics) error
	UpsertSegmented(ctx context.Context, q storage.Querier, m *models.SegmentedMetrics) error
}

// MetricsService computes the daily overall and segmented metric snapshots
// of an integration. Computation is a pure read of ingested data followed by
// an upsert keyed on the snapshot date, so recomputing the same day
// overwrites rather than duplicates.
type MetricsService struct {
	db           TxRunner
	customerRepo MetricsCustomerStore
	txRepo       MetricsTransactionStore
	eventRepo    MetricsEventStore
	metricsRepo  MetricsStore
	lookbackDays int
}

// NewMetricsService creates a new metrics service
func NewMetricsService(
	db TxRunner,
	customerRepo MetricsCustomerStore,
	txRepo MetricsTransactionStore,
	eventRepo MetricsEventStore,
	metricsRepo MetricsStore,
	lookbackDays int,
) *MetricsService {
	return &MetricsService{
		db:           db,
		customerRepo: customerRepo,
		txRepo:       txRepo,
		eventRepo:    eventRepo,
		metricsRepo:  metricsRepo,
		lookbackDays: lookbackDays,
	}
}

// snapshotWindow returns today's snapshot date (UTC, midnight) and the start
// of the activity window
func (s *MetricsService) snapshotWindow() (date, since time.Time) {
	now := time.Now().UTC()
	date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return date, date.AddDate(0, 0, -s.lookbackDays)
}

// ComputeOverallMetrics computes and stores today's overall metric snapshot
// for an integration
func (s *MetricsService) ComputeOverallMetrics(ctx context.Context, integrationID string) (*models.DailyMetrics, error) {
	date, since := s.snapshotWindow()

	set, err := s.computeMetricSet(ctx, integrationID, since, nil)
	if err != nil {
		return nil, err
	}

	snapshot := &models.DailyMetrics{
		IntegrationID: integrationID,
		CampaignType:  models.DefaultCampaignType,
		Date:          date,
		MetricSet:     *set,
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return s.metricsRepo.UpsertDaily(ctx, tx, snapshot)
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("overall", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"integrationId":   integrationID,
		"date":            date.Format("2006-01-02"),
		"activeCustomers": set.ActiveCustomers,
	}).Info("Computed overall metrics")

	return snapshot, nil
}

// ComputeSegmentedMetrics computes and stores today's metric snapshot for
// every segment of every segmentation field. All rows are computed first and
// written in one transaction, so a failing segment leaves no partial day
// behind.
func (s *MetricsService) ComputeSegmentedMetrics(ctx context.Context, integrationID string) ([]*models.SegmentedMetrics, error) {
	date, since := s.snapshotWindow()

	var snapshots []*models.SegmentedMetrics
	for _, field := range storage.SegmentFields {
		values, err := s.customerRepo.DistinctSegmentValues(ctx, integrationID, field)
		if err != nil {
			return nil, apperrors.NewAggregationError(field, err)
		}

		for _, value := range values {
			segment := &storage.Segment{Field: field, Value: value}
			set, err := s.computeMetricSet(ctx, integrationID, since, segment)
			if err != nil {
				return nil, err
			}

			snapshots = append(snapshots, &models.SegmentedMetrics{
				IntegrationID: integrationID,
				CampaignType:  models.DefaultCampaignType,
				Date:          date,
				Segment:       segment.Descriptor(),
				MetricSet:     *set,
			})
		}
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, snapshot := range snapshots {
			if err := s.metricsRepo.UpsertSegmented(ctx, tx, snapshot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("segmented", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"integrationId": integrationID,
		"date":          date.Format("2006-01-02"),
		"segments":      len(snapshots),
	}).Info("Computed segmented metrics")

	return snapshots, nil
}

// computeMetricSet computes one metric set. A nil segment computes the
// overall snapshot; a non-nil one narrows every query to the segment's
// customers and switches to the segment revenue semantics (revenue inside
// the activity window instead of all-time).
func (s *MetricsService) computeMetricSet(ctx context.Context, integrationID string, since time.Time, segment *storage.Segment) (*models.MetricSet, error) {
	activeCustomers, err := s.customerRepo.Count(ctx, integrationID, storage.CustomerFilter{
		PurchasedSince: &since,
		Segment:        segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("active_customers", err)
	}

	newCustomers, err := s.customerRepo.Count(ctx, integrationID, storage.CustomerFilter{
		SignupSince: &since,
		Segment:     segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("new_customers", err)
	}

	totalCustomers, err := s.customerRepo.Count(ctx, integrationID, storage.CustomerFilter{
		Segment: segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("total_customers", err)
	}

	allTimeRevenue, err := s.txRepo.SumRevenue(ctx, integrationID, storage.TransactionFilter{Segment: segment})
	if err != nil {
		return nil, apperrors.NewAggregationError("total_revenue", err)
	}

	windowRevenue, err := s.txRepo.SumRevenue(ctx, integrationID, storage.TransactionFilter{
		Since:   &since,
		Segment: segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("window_revenue", err)
	}

	windowTransactions, err := s.txRepo.Count(ctx, integrationID, storage.TransactionFilter{
		Since:   &since,
		Segment: segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("transactions", err)
	}
	// Floor at one so downstream ratios never divide by zero.
	windowTransactions = floorOne(windowTransactions)

	opens, err := s.eventRepo.Count(ctx, integrationID, storage.EventFilter{
		Type:    models.EventTypeMailOpen,
		Since:   &since,
		Segment: segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("opens", err)
	}

	clicks, err := s.eventRepo.Count(ctx, integrationID, storage.EventFilter{
		Type:    models.EventTypeMailClick,
		Since:   &since,
		Segment: segment,
	})
	if err != nil {
		return nil, apperrors.NewAggregationError("clicks", err)
	}

	visitors, err := s.countVisitors(ctx, integrationID, since, segment)
	if err != nil {
		return nil, apperrors.NewAggregationError("visitors", err)
	}

	set := &models.MetricSet{
		ActiveCustomers:              activeCustomers,
		NewCustomers:                 newCustomers,
		PassiveCustomers:             totalCustomers - activeCustomers,
		VisitorsWebsiteFromCustomers: visitors,
		OpenRate:                     decimal.Zero,
		ClickRate:                    divRatio(clicks, opens),
		ConversionRate:               divRatio(windowTransactions, clicks),
		OptOuts:                      0,
		Opens:                        opens,
		Clicks:                       clicks,
		Transactions:                 windowTransactions,
	}

	if segment == nil {
		// Overall snapshots report all-time revenue; per-customer averages
		// and CLV are all-time revenue over the respective customer count.
		allTimeTransactions, err := s.txRepo.Count(ctx, integrationID, storage.TransactionFilter{})
		if err != nil {
			return nil, apperrors.NewAggregationError("all_time_transactions", err)
		}

		set.TotalRevenue = allTimeRevenue
		set.AvgPurchaseRevenuePerCustomer = safeDiv(allTimeRevenue, totalCustomers)
		set.AvgPurchaseRevenuePerActiveCustomer = safeDiv(windowRevenue, activeCustomers)
		// Purchase size is only defined for an integration with customers:
		// transactions can reference customer ids the customers feed never
		// delivered, and those alone must not produce an average.
		set.AvgPurchaseSize = decimal.Zero
		if totalCustomers > 0 {
			set.AvgPurchaseSize = safeDiv(allTimeRevenue, allTimeTransactions)
		}
		set.CustomerLifetimeValueOverall = safeDiv(allTimeRevenue, totalCustomers)
		set.CustomerLifetimeValueActiveCustomers = safeDiv(windowRevenue, activeCustomers)
	} else {
		// Segment snapshots report windowed revenue; lifetime value uses
		// all-time segment revenue over customers with at least one
		// transaction.
		purchasers, err := s.customerRepo.Count(ctx, integrationID, storage.CustomerFilter{
			HasTransaction: true,
			Segment:        segment,
		})
		if err != nil {
			return nil, apperrors.NewAggregationError("purchasers", err)
		}

		set.TotalRevenue = windowRevenue
		set.AvgPurchaseRevenuePerCustomer = safeDiv(windowRevenue, totalCustomers)
		set.AvgPurchaseRevenuePerActiveCustomer = safeDiv(windowRevenue, activeCustomers)
		set.AvgPurchaseSize = safeDiv(windowRevenue, windowTransactions)
		set.CustomerLifetimeValueOverall = safeDiv(allTimeRevenue, floorOne(purchasers))
		set.CustomerLifetimeValueActiveCustomers = safeDiv(windowRevenue, activeCustomers)
	}

	return set, nil
}

// countVisitors counts website visitors. The overall snapshot counts every
// "visit" event ever recorded; segment snapshots count distinct customers
// with a BROWSE event inside the activity window.
func (s *MetricsService) countVisitors(ctx context.Context, integrationID string, since time.Time, segment *storage.Segment) (int64, error) {
	if segment == nil {
		return s.eventRepo.Count(ctx, integrationID, storage.EventFilter{
			Type: models.EventTypeVisit,
		})
	}
	return s.eventRepo.Count(ctx, integrationID, storage.EventFilter{
		Type:              models.EventTypeBrowse,
		Since:             &since,
		DistinctCustomers: true,
		Segment:           segment,
	})
}

// safeDiv divides revenue by a count, rounding to cents. Returns zero when
// the count is zero.
func safeDiv(revenue decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(count)).Round(2)
}

// divRatio divides two counts, returning zero when the denominator is zero
func divRatio(numerator, denominator int64) decimal.Decimal {
	if denominator == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(numerator).Div(decimal.NewFromInt(denominator)).Round(2)
}

func floorOne(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}
