package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/models"
)

// CustomerFilter narrows customer counting queries. A nil field means no
// constraint. PurchasedSince and HasTransaction both join the transactions
// table, so a customer is counted at most once regardless of how many
// transactions match.
type CustomerFilter struct {
	SignupSince    *time.Time
	PurchasedSince *time.Time
	HasTransaction bool
	Segment        *Segment
}

// CustomerRepository handles customer data persistence
type CustomerRepository struct {
	db *PostgresDB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *PostgresDB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `
	id, integration_id, cb_id, signup_date, last_purchase_date,
	last_action_date, last_login, can_email, city, country, gender,
	language, tags, mailing_lists, created_at
`

// Upsert inserts a customer or, when the (integration, cb_id) pair already
// exists, overwrites the existing row with the incoming attribute values.
// Date fields only overwrite when the payload carries them: a NULL incoming
// date keeps the stored value, so re-ingesting a partial payload never wipes
// a signup date or a derived activity date.
func (r *CustomerRepository) Upsert(ctx context.Context, q Querier, customer *models.Customer) error {
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}

	tagsJSON, err := json.Marshal(orEmpty(customer.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	listsJSON, err := json.Marshal(orEmpty(customer.MailingLists))
	if err != nil {
		return fmt.Errorf("failed to marshal mailing lists: %w", err)
	}

	query := `
		INSERT INTO customers (
			id, integration_id, cb_id, signup_date, last_purchase_date,
			last_action_date, last_login, can_email, city, country, gender,
			language, tags, mailing_lists, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (integration_id, cb_id) DO UPDATE SET
			signup_date = COALESCE(EXCLUDED.signup_date, customers.signup_date),
			last_purchase_date = COALESCE(EXCLUDED.last_purchase_date, customers.last_purchase_date),
			last_action_date = COALESCE(EXCLUDED.last_action_date, customers.last_action_date),
			last_login = COALESCE(EXCLUDED.last_login, customers.last_login),
			can_email = EXCLUDED.can_email,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			gender = EXCLUDED.gender,
			language = EXCLUDED.language,
			tags = EXCLUDED.tags,
			mailing_lists = EXCLUDED.mailing_lists
	`

	_, err = q.Exec(ctx, query,
		customer.ID,
		customer.IntegrationID,
		customer.ExternalID,
		customer.SignupDate,
		customer.LastPurchaseDate,
		customer.LastActionDate,
		customer.LastLogin,
		customer.CanEmail,
		customer.City,
		customer.Country,
		customer.Gender,
		customer.Language,
		tagsJSON,
		listsJSON,
		customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}

	return nil
}

// GetByExternalID retrieves a customer by its Custobar id within an
// integration
func (r *CustomerRepository) GetByExternalID(ctx context.Context, integrationID, externalID string) (*models.Customer, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM customers
		WHERE integration_id = $1 AND cb_id = $2
	`, customerColumns)

	customer, err := scanCustomer(r.db.Pool().QueryRow(ctx, query, integrationID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("customer", externalID)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// Count counts the customers of an integration matching the filter
func (r *CustomerRepository) Count(ctx context.Context, integrationID string, filter CustomerFilter) (int64, error) {
	query := `SELECT COUNT(DISTINCT c.id) FROM customers c`
	args := []any{integrationID}

	if filter.PurchasedSince != nil || filter.HasTransaction {
		query += ` JOIN transactions t ON t.integration_id = c.integration_id AND t.cb_id = c.cb_id`
	}
	query += ` WHERE c.integration_id = $1`

	if filter.SignupSince != nil {
		args = append(args, *filter.SignupSince)
		query += fmt.Sprintf(` AND c.signup_date >= $%d`, len(args))
	}
	if filter.PurchasedSince != nil {
		args = append(args, *filter.PurchasedSince)
		query += fmt.Sprintf(` AND t.transaction_date >= $%d`, len(args))
	}
	if filter.Segment != nil {
		expr, err := segmentValueExpr(filter.Segment.Field)
		if err != nil {
			return 0, err
		}
		args = append(args, filter.Segment.Value)
		query += fmt.Sprintf(` AND %s = $%d`, expr, len(args))
	}

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}

	return count, nil
}

// DistinctSegmentValues returns the sorted distinct rendered values of a
// segmentation field across an integration's customers. NULL and empty
// attributes render as "Unknown".
func (r *CustomerRepository) DistinctSegmentValues(ctx context.Context, integrationID, field string) ([]string, error) {
	expr, err := segmentValueExpr(field)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s AS segment_value
		FROM customers c
		WHERE c.integration_id = $1
		ORDER BY segment_value
	`, expr)

	rows, err := r.db.Pool().Query(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan segment value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segment values: %w", err)
	}

	return values, nil
}

// UpdateLastPurchaseDates sets each customer's last_purchase_date to the
// latest transaction date recorded for that customer within the
// integration. Customers without transactions are untouched. Returns the
// number of customers updated.
func (r *CustomerRepository) UpdateLastPurchaseDates(ctx context.Context, q Querier, integrationID string) (int64, error) {
	query := `
		UPDATE customers c
		SET last_purchase_date = latest.max_date
		FROM (
			SELECT cb_id, MAX(transaction_date) AS max_date
			FROM transactions
			WHERE integration_id = $1 AND transaction_date IS NOT NULL
			GROUP BY cb_id
		) latest
		WHERE c.integration_id = $1
		  AND c.cb_id = latest.cb_id
		  AND c.last_purchase_date IS DISTINCT FROM latest.max_date
	`

	tag, err := q.Exec(ctx, query, integrationID)
	if err != nil {
		return 0, fmt.Errorf("failed to update last purchase dates: %w", err)
	}

	return tag.RowsAffected(), nil
}

// UpdateLastActionDates sets each customer's last_action_date to the latest
// event date recorded for that customer within the integration. Returns the
// number of customers updated.
func (r *CustomerRepository) UpdateLastActionDates(ctx context.Context, q Querier, integrationID string) (int64, error) {
	query := `
		UPDATE customers c
		SET last_action_date = latest.max_date
		FROM (
			SELECT cb_id, MAX(date) AS max_date
			FROM events
			WHERE integration_id = $1 AND date IS NOT NULL
			GROUP BY cb_id
		) latest
		WHERE c.integration_id = $1
		  AND c.cb_id = latest.cb_id
		  AND c.last_action_date IS DISTINCT FROM latest.max_date
	`

	tag, err := q.Exec(ctx, query, integrationID)
	if err != nil {
		return 0, fmt.Errorf("failed to update last action dates: %w", err)
	}

	return tag.RowsAffected(), nil
}

// scanCustomer scans one customer row including the JSON list columns
func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var customer models.Customer
	var tagsJSON, listsJSON []byte

	err := row.Scan(
		&customer.ID,
		&customer.IntegrationID,
		&customer.ExternalID,
		&customer.SignupDate,
		&customer.LastPurchaseDate,
		&customer.LastActionDate,
		&customer.LastLogin,
		&customer.CanEmail,
		&customer.City,
		&customer.Country,
		&customer.Gender,
		&customer.Language,
		&tagsJSON,
		&listsJSON,
		&customer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &customer.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if len(listsJSON) > 0 {
		if err := json.Unmarshal(listsJSON, &customer.MailingLists); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mailing lists: %w", err)
		}
	}

	return &customer, nil
}

// orEmpty normalizes a nil slice to an empty one so the stored JSON is
// always an array
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
