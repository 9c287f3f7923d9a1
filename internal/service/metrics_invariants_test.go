package service

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// TestOverallMetricsInvariants checks structural invariants of the overall
// snapshot over randomized aggregate inputs: customer counts are conserved,
// the transaction count never reaches zero, and no derived metric goes
// negative for non-negative inputs.
func TestOverallMetricsInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("customer counts are conserved", prop.ForAll(
		func(total, active, newC, txCount, revenueCents int64) bool {
			if active > total {
				active, total = total, active
			}

			fixture := &metricsFixture{
				totalCustomers:  total,
				activeCustomers: active,
				newCustomers:    newC,
				allRevenue:      decimal.New(revenueCents, -2),
				windowRevenue:   decimal.New(revenueCents, -2),
				allTxCount:      txCount,
				windowTxCount:   txCount,
			}

			svc, _ := newMetricsService(fixture)
			snapshot, err := svc.ComputeOverallMetrics(context.Background(), "int-1")
			if err != nil {
				return false
			}

			if snapshot.ActiveCustomers+snapshot.PassiveCustomers != total {
				return false
			}
			if snapshot.Transactions < 1 {
				return false
			}

			for _, d := range []decimal.Decimal{
				snapshot.TotalRevenue,
				snapshot.AvgPurchaseRevenuePerCustomer,
				snapshot.AvgPurchaseRevenuePerActiveCustomer,
				snapshot.AvgPurchaseSize,
				snapshot.CustomerLifetimeValueOverall,
				snapshot.CustomerLifetimeValueActiveCustomers,
				snapshot.ClickRate,
				snapshot.ConversionRate,
			} {
				if d.IsNegative() {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.Property("recomputation is deterministic", prop.ForAll(
		func(total, active, revenueCents int64) bool {
			if active > total {
				active, total = total, active
			}

			fixture := &metricsFixture{
				totalCustomers:  total,
				activeCustomers: active,
				allRevenue:      decimal.New(revenueCents, -2),
				windowRevenue:   decimal.New(revenueCents, -2),
				allTxCount:      5,
				windowTxCount:   5,
			}

			svc, _ := newMetricsService(fixture)
			first, err := svc.ComputeOverallMetrics(context.Background(), "int-1")
			if err != nil {
				return false
			}
			second, err := svc.ComputeOverallMetrics(context.Background(), "int-1")
			if err != nil {
				return false
			}

			return first.ActiveCustomers == second.ActiveCustomers &&
				first.TotalRevenue.Equal(second.TotalRevenue) &&
				first.AvgPurchaseSize.Equal(second.AvgPurchaseSize) &&
				first.ClickRate.Equal(second.ClickRate)
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}
