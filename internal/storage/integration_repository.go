package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/models"
)

// IntegrationRepository handles integration data persistence
type IntegrationRepository struct {
	db *PostgresDB
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db *PostgresDB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// Create creates a new integration
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	integration.CreatedAt = time.Now()

	query := `
		INSERT INTO integrations (id, user_id, api_key, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		integration.ID,
		integration.UserID,
		integration.APIKey,
		integration.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

// GetByID retrieves an integration by ID
func (r *IntegrationRepository) GetByID(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT id, user_id, api_key, created_at
		FROM integrations
		WHERE id = $1
	`

	var integration models.Integration
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&integration.ID,
		&integration.UserID,
		&integration.APIKey,
		&integration.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("integration", id)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return &integration, nil
}

// List retrieves all integrations ordered by creation time
func (r *IntegrationRepository) List(ctx context.Context) ([]*models.Integration, error) {
	query := `
		SELECT id, user_id, api_key, created_at
		FROM integrations
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		var integration models.Integration
		if err := rows.Scan(
			&integration.ID,
			&integration.UserID,
			&integration.APIKey,
			&integration.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, &integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate integrations: %w", err)
	}

	return integrations, nil
}

// Delete removes an integration and, through cascading foreign keys, all of
// its ingested data and metric snapshots
func (r *IntegrationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("integration", id)
	}
	return nil
}
