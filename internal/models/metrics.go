package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricSet is the full set of derived aggregate metrics computed per
// integration and calendar day. OpenRate and OptOuts are placeholders that
// always compute to zero; they are kept so the stored row shape stays stable.
type MetricSet struct {
	ActiveCustomers                      int64           `json:"activeCustomers" db:"active_customers"`
	NewCustomers                         int64           `json:"newCustomers" db:"new_customers"`
	PassiveCustomers                     int64           `json:"passiveCustomers" db:"passive_customers"`
	TotalRevenue                         decimal.Decimal `json:"totalRevenue" db:"total_revenue"`
	AvgPurchaseRevenuePerCustomer        decimal.Decimal `json:"avgPurchaseRevenuePerCustomer" db:"avg_purchase_revenue_per_customer"`
	AvgPurchaseRevenuePerActiveCustomer  decimal.Decimal `json:"avgPurchaseRevenuePerActiveCustomer" db:"avg_purchase_revenue_per_active_customer"`
	AvgPurchaseSize                      decimal.Decimal `json:"avgPurchaseSize" db:"avg_purchase_size"`
	VisitorsWebsiteFromCustomers         int64           `json:"visitorsWebsiteFromCustomers" db:"visitors_website_from_customers"`
	CustomerLifetimeValueOverall         decimal.Decimal `json:"customerLifetimeValueOverall" db:"customer_lifetime_value_overall"`
	CustomerLifetimeValueActiveCustomers decimal.Decimal `json:"customerLifetimeValueActiveCustomers" db:"customer_lifetime_value_active_customers"`
	OpenRate                             decimal.Decimal `json:"openRate" db:"open_rate"`
	ClickRate                            decimal.Decimal `json:"clickRate" db:"click_rate"`
	ConversionRate                       decimal.Decimal `json:"conversionRate" db:"conversion_rate"`
	OptOuts                              int64           `json:"optOuts" db:"opt_outs"`
	Opens                                int64           `json:"opens" db:"opens"`
	Clicks                               int64           `json:"clicks" db:"clicks"`
	Transactions                         int64           `json:"transactions" db:"transactions"`
}

// DailyMetrics is the overall metric snapshot for one integration and one
// calendar date. Upsert key: (integration, date). The rows are a cache, not
// a ledger: each aggregation run fully recomputes and overwrites them.
type DailyMetrics struct {
	ID            string    `json:"id" db:"id"`
	IntegrationID string    `json:"integrationId" db:"integration_id"`
	CampaignType  string    `json:"campaignType" db:"campaign_type"`
	Date          time.Time `json:"date" db:"date"`
	MetricSet
}

// SegmentedMetrics is the metric snapshot for one customer segment of one
// integration on one calendar date. Segment is rendered as "<field>: <value>".
// Upsert key: (integration, date, segment).
type SegmentedMetrics struct {
	ID            string    `json:"id" db:"id"`
	IntegrationID string    `json:"integrationId" db:"integration_id"`
	CampaignType  string    `json:"campaignType" db:"campaign_type"`
	Date          time.Time `json:"date" db:"date"`
	Segment       string    `json:"segment" db:"segment"`
	MetricSet
}

// DefaultCampaignType mirrors the fixed campaign label stamped on every
// metric row by the original reporting pipeline.
const DefaultCampaignType = "Email"
