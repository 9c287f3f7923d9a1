package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custobar-insights/internal/models"
)

// TransactionFilter narrows transaction aggregate queries. A Segment filter
// joins the customers table on the transaction's customer cb_id.
type TransactionFilter struct {
	Since   *time.Time
	Segment *Segment
}

// TransactionRepository handles transaction data persistence
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Exists reports whether a transaction with the given customer and sale
// external ids was already ingested for the integration. Reading through the
// caller's Querier means rows inserted earlier in the same batch transaction
// count as existing.
func (r *TransactionRepository) Exists(ctx context.Context, q Querier, integrationID, externalID, saleExternalID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE integration_id = $1 AND cb_id = $2 AND sale_external_id = $3
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, integrationID, externalID, saleExternalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}

	return exists, nil
}

// Insert inserts a transaction. Re-inserting an already-seen
// (integration, cb_id, sale_external_id) triple is a no-op: the existing
// row is never modified.
func (r *TransactionRepository) Insert(ctx context.Context, q Querier, transaction *models.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	productsJSON, err := json.Marshal(orEmpty(transaction.ProductIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal product ids: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, integration_id, cb_id, sale_external_id, transaction_date,
			revenue, product_ids, action_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (integration_id, cb_id, sale_external_id) DO NOTHING
	`

	_, err = q.Exec(ctx, query,
		transaction.ID,
		transaction.IntegrationID,
		transaction.ExternalID,
		transaction.SaleExternalID,
		transaction.TransactionDate,
		transaction.Revenue.StringFixed(2),
		productsJSON,
		transaction.ActionType,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// Count counts the transactions of an integration matching the filter
func (r *TransactionRepository) Count(ctx context.Context, integrationID string, filter TransactionFilter) (int64, error) {
	query, args, err := transactionAggregateQuery(`COUNT(*)`, integrationID, filter)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// SumRevenue sums the revenue of an integration's transactions matching the
// filter. Returns zero when no transaction matches.
func (r *TransactionRepository) SumRevenue(ctx context.Context, integrationID string, filter TransactionFilter) (decimal.Decimal, error) {
	query, args, err := transactionAggregateQuery(`COALESCE(SUM(t.revenue), 0)::text`, integrationID, filter)
	if err != nil {
		return decimal.Zero, err
	}

	var raw string
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum revenue: %w", err)
	}

	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse revenue sum: %w", err)
	}

	return sum, nil
}

// transactionAggregateQuery builds the shared SELECT for transaction
// aggregates
func transactionAggregateQuery(selectExpr, integrationID string, filter TransactionFilter) (string, []any, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions t`, selectExpr)
	args := []any{integrationID}

	if filter.Segment != nil {
		query += ` JOIN customers c ON c.integration_id = t.integration_id AND c.cb_id = t.cb_id`
	}
	query += ` WHERE t.integration_id = $1`

	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(` AND t.transaction_date >= $%d`, len(args))
	}
	if filter.Segment != nil {
		expr, err := segmentValueExpr(filter.Segment.Field)
		if err != nil {
			return "", nil, err
		}
		args = append(args, filter.Segment.Value)
		query += fmt.Sprintf(` AND %s = $%d`, expr, len(args))
	}

	return query, args, nil
}
