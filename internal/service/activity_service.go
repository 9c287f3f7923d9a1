package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/storage"
)

// ActivityCustomerStore provides the derived-date updates and integration
// listing the activity updater needs
type ActivityCustomerStore interface {
	UpdateLastPurchaseDates(ctx context.Context, q storage.Querier, integrationID string) (int64, error)
	UpdateLastActionDates(ctx context.Context, q storage.Querier, integrationID string) (int64, error)
}

// IntegrationLister lists the integrations to process
type IntegrationLister interface {
	List(ctx context.Context) ([]*models.Integration, error)
}

// ActivityResult reports how many customers had a derived date refreshed
type ActivityResult struct {
	PurchaseDatesUpdated int64 `json:"purchaseDatesUpdated"`
	ActionDatesUpdated   int64 `json:"actionDatesUpdated"`
}

// ActivityService refreshes the derived last_purchase_date and
// last_action_date fields of customers from their ingested transaction and
// event history
type ActivityService struct {
	db              TxRunner
	customerRepo    ActivityCustomerStore
	integrationRepo IntegrationLister
}

// NewActivityService creates a new activity service
func NewActivityService(db TxRunner, customerRepo ActivityCustomerStore, integrationRepo IntegrationLister) *ActivityService {
	return &ActivityService{
		db:              db,
		customerRepo:    customerRepo,
		integrationRepo: integrationRepo,
	}
}

// UpdateForIntegration refreshes the derived dates of one integration's
// customers. Both updates run in one transaction.
func (s *ActivityService) UpdateForIntegration(ctx context.Context, integrationID string) (*ActivityResult, error) {
	result := &ActivityResult{}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		purchases, err := s.customerRepo.UpdateLastPurchaseDates(ctx, tx, integrationID)
		if err != nil {
			return err
		}
		actions, err := s.customerRepo.UpdateLastActionDates(ctx, tx, integrationID)
		if err != nil {
			return err
		}

		result.PurchaseDatesUpdated = purchases
		result.ActionDatesUpdated = actions
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"integrationId":   integrationID,
		"purchaseUpdates": result.PurchaseDatesUpdated,
		"actionUpdates":   result.ActionDatesUpdated,
	}).Info("Updated customer activity dates")

	return result, nil
}

// UpdateAll refreshes the derived dates of every integration, one
// integration at a time so a failure in one tenant leaves the others
// untouched
func (s *ActivityService) UpdateAll(ctx context.Context) (map[string]*ActivityResult, error) {
	integrations, err := s.integrationRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*ActivityResult, len(integrations))
	for _, integration := range integrations {
		result, err := s.UpdateForIntegration(ctx, integration.ID)
		if err != nil {
			return results, err
		}
		results[integration.ID] = result
	}

	return results, nil
}
