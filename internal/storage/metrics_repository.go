package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custobar-insights/internal/models"
)

// MetricsRepository handles daily and segmented metric snapshots
type MetricsRepository struct {
	db *PostgresDB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *PostgresDB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// metricSelectColumns lists the metric value columns in MetricSet order,
// with numeric columns cast to text for lossless decimal scanning.
const metricSelectColumns = `
	active_customers, new_customers, passive_customers,
	total_revenue::text, avg_purchase_revenue_per_customer::text,
	avg_purchase_revenue_per_active_customer::text, avg_purchase_size::text,
	visitors_website_from_customers, customer_lifetime_value_overall::text,
	customer_lifetime_value_active_customers::text, open_rate::text,
	click_rate::text, conversion_rate::text, opt_outs, opens, clicks,
	transactions
`

// UpsertDaily inserts or overwrites the overall metric snapshot of an
// integration for one date
func (r *MetricsRepository) UpsertDaily(ctx context.Context, q Querier, m *models.DailyMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO metrics (
			id, integration_id, campaign_type, date,
			active_customers, new_customers, passive_customers,
			total_revenue, avg_purchase_revenue_per_customer,
			avg_purchase_revenue_per_active_customer, avg_purchase_size,
			visitors_website_from_customers, customer_lifetime_value_overall,
			customer_lifetime_value_active_customers, open_rate, click_rate,
			conversion_rate, opt_outs, opens, clicks, transactions
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (integration_id, date) DO UPDATE SET
			campaign_type = EXCLUDED.campaign_type,
			active_customers = EXCLUDED.active_customers,
			new_customers = EXCLUDED.new_customers,
			passive_customers = EXCLUDED.passive_customers,
			total_revenue = EXCLUDED.total_revenue,
			avg_purchase_revenue_per_customer = EXCLUDED.avg_purchase_revenue_per_customer,
			avg_purchase_revenue_per_active_customer = EXCLUDED.avg_purchase_revenue_per_active_customer,
			avg_purchase_size = EXCLUDED.avg_purchase_size,
			visitors_website_from_customers = EXCLUDED.visitors_website_from_customers,
			customer_lifetime_value_overall = EXCLUDED.customer_lifetime_value_overall,
			customer_lifetime_value_active_customers = EXCLUDED.customer_lifetime_value_active_customers,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			conversion_rate = EXCLUDED.conversion_rate,
			opt_outs = EXCLUDED.opt_outs,
			opens = EXCLUDED.opens,
			clicks = EXCLUDED.clicks,
			transactions = EXCLUDED.transactions,
			updated_at = now()
	`

	args := append([]any{m.ID, m.IntegrationID, m.CampaignType, m.Date}, metricSetArgs(&m.MetricSet)...)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}

	return nil
}

// UpsertSegmented inserts or overwrites the metric snapshot of one segment
// for one date
func (r *MetricsRepository) UpsertSegmented(ctx context.Context, q Querier, m *models.SegmentedMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO segmented_metrics (
			id, integration_id, campaign_type, date, segment,
			active_customers, new_customers, passive_customers,
			total_revenue, avg_purchase_revenue_per_customer,
			avg_purchase_revenue_per_active_customer, avg_purchase_size,
			visitors_website_from_customers, customer_lifetime_value_overall,
			customer_lifetime_value_active_customers, open_rate, click_rate,
			conversion_rate, opt_outs, opens, clicks, transactions
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (integration_id, date, segment) DO UPDATE SET
			campaign_type = EXCLUDED.campaign_type,
			active_customers = EXCLUDED.active_customers,
			new_customers = EXCLUDED.new_customers,
			passive_customers = EXCLUDED.passive_customers,
			total_revenue = EXCLUDED.total_revenue,
			avg_purchase_revenue_per_customer = EXCLUDED.avg_purchase_revenue_per_customer,
			avg_purchase_revenue_per_active_customer = EXCLUDED.avg_purchase_revenue_per_active_customer,
			avg_purchase_size = EXCLUDED.avg_purchase_size,
			visitors_website_from_customers = EXCLUDED.visitors_website_from_customers,
			customer_lifetime_value_overall = EXCLUDED.customer_lifetime_value_overall,
			customer_lifetime_value_active_customers = EXCLUDED.customer_lifetime_value_active_customers,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			conversion_rate = EXCLUDED.conversion_rate,
			opt_outs = EXCLUDED.opt_outs,
			opens = EXCLUDED.opens,
			clicks = EXCLUDED.clicks,
			transactions = EXCLUDED.transactions,
			updated_at = now()
	`

	args := append([]any{m.ID, m.IntegrationID, m.CampaignType, m.Date, m.Segment}, metricSetArgs(&m.MetricSet)...)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert segmented metrics: %w", err)
	}

	return nil
}

// ListDaily retrieves the overall metric snapshots of an integration in the
// date range [from, to], newest first
func (r *MetricsRepository) ListDaily(ctx context.Context, integrationID string, from, to time.Time) ([]*models.DailyMetrics, error) {
	query := fmt.Sprintf(`
		SELECT id, integration_id, campaign_type, date, %s
		FROM metrics
		WHERE integration_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
	`, metricSelectColumns)

	rows, err := r.db.Pool().Query(ctx, query, integrationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var results []*models.DailyMetrics
	for rows.Next() {
		var m models.DailyMetrics
		dest := append([]any{&m.ID, &m.IntegrationID, &m.CampaignType, &m.Date}, metricSetDest(&m.MetricSet)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		results = append(results, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}

	return results, nil
}

// ListSegmented retrieves the segment snapshots of an integration for one
// date, ordered by segment label
func (r *MetricsRepository) ListSegmented(ctx context.Context, integrationID string, date time.Time) ([]*models.SegmentedMetrics, error) {
	query := fmt.Sprintf(`
		SELECT id, integration_id, campaign_type, date, segment, %s
		FROM segmented_metrics
		WHERE integration_id = $1 AND date = $2
		ORDER BY segment
	`, metricSelectColumns)

	rows, err := r.db.Pool().Query(ctx, query, integrationID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list segmented metrics: %w", err)
	}
	defer rows.Close()

	var results []*models.SegmentedMetrics
	for rows.Next() {
		var m models.SegmentedMetrics
		dest := append([]any{&m.ID, &m.IntegrationID, &m.CampaignType, &m.Date, &m.Segment}, metricSetDest(&m.MetricSet)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan segmented metrics: %w", err)
		}
		results = append(results, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segmented metrics: %w", err)
	}

	return results, nil
}

// metricSetArgs flattens a MetricSet into exec arguments in column order,
// rendering decimals as fixed-point strings
func metricSetArgs(m *models.MetricSet) []any {
	return []any{
		m.ActiveCustomers,
		m.NewCustomers,
		m.PassiveCustomers,
		m.TotalRevenue.StringFixed(2),
		m.AvgPurchaseRevenuePerCustomer.StringFixed(2),
		m.AvgPurchaseRevenuePerActiveCustomer.StringFixed(2),
		m.AvgPurchaseSize.StringFixed(2),
		m.VisitorsWebsiteFromCustomers,
		m.CustomerLifetimeValueOverall.StringFixed(2),
		m.CustomerLifetimeValueActiveCustomers.StringFixed(2),
		m.OpenRate.StringFixed(2),
		m.ClickRate.StringFixed(2),
		m.ConversionRate.StringFixed(2),
		m.OptOuts,
		m.Opens,
		m.Clicks,
		m.Transactions,
	}
}

// metricSetDest builds scan destinations matching metricSelectColumns. The
// decimal columns scan through decimalScanner.
func metricSetDest(m *models.MetricSet) []any {
	return []any{
		&m.ActiveCustomers,
		&m.NewCustomers,
		&m.PassiveCustomers,
		&decimalScanner{&m.TotalRevenue},
		&decimalScanner{&m.AvgPurchaseRevenuePerCustomer},
		&decimalScanner{&m.AvgPurchaseRevenuePerActiveCustomer},
		&decimalScanner{&m.AvgPurchaseSize},
		&m.VisitorsWebsiteFromCustomers,
		&decimalScanner{&m.CustomerLifetimeValueOverall},
		&decimalScanner{&m.CustomerLifetimeValueActiveCustomers},
		&decimalScanner{&m.OpenRate},
		&decimalScanner{&m.ClickRate},
		&decimalScanner{&m.ConversionRate},
		&m.OptOuts,
		&m.Opens,
		&m.Clicks,
		&m.Transactions,
	}
}

// decimalScanner scans a text-cast numeric column into a decimal
type decimalScanner struct {
	dst *decimal.Decimal
}

func (s *decimalScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.dst = decimal.Zero
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("failed to parse decimal %q: %w", v, err)
		}
		*s.dst = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("failed to parse decimal %q: %w", v, err)
		}
		*s.dst = d
		return nil
	default:
		return fmt.Errorf("cannot scan %T into decimal", src)
	}
}
