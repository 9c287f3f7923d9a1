package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custobar-insights/internal/models"
)

// EventFilter narrows event counting queries. DistinctCustomers switches
// the count from event rows to distinct customers that emitted a matching
// event. A Segment filter joins the customers table on the event's
// customer cb_id.
type EventFilter struct {
	Type              string
	Since             *time.Time
	DistinctCustomers bool
	Segment           *Segment
}

// EventRepository handles event data persistence
type EventRepository struct {
	db *PostgresDB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *PostgresDB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert inserts an event. Events carry no natural dedup key, so every call
// appends a new row.
func (r *EventRepository) Insert(ctx context.Context, q Querier, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	utmJSON, err := json.Marshal(event.Attribution)
	if err != nil {
		return fmt.Errorf("failed to marshal attribution: %w", err)
	}

	query := `
		INSERT INTO events (
			id, integration_id, cb_id, event_type, date, utm_data,
			product_id, path
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = q.Exec(ctx, query,
		event.ID,
		event.IntegrationID,
		event.ExternalID,
		event.EventType,
		event.Date,
		utmJSON,
		event.ProductID,
		event.Path,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// Count counts the events of an integration matching the filter
func (r *EventRepository) Count(ctx context.Context, integrationID string, filter EventFilter) (int64, error) {
	selectExpr := `COUNT(*)`
	if filter.DistinctCustomers {
		selectExpr = `COUNT(DISTINCT e.cb_id)`
	}

	query := fmt.Sprintf(`SELECT %s FROM events e`, selectExpr)
	args := []any{integrationID}

	if filter.Segment != nil {
		query += ` JOIN customers c ON c.integration_id = e.integration_id AND c.cb_id = e.cb_id`
	}
	query += ` WHERE e.integration_id = $1`

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(` AND e.event_type = $%d`, len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(` AND e.date >= $%d`, len(args))
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
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}
