package service

import (
	"context"
	"errors"
	"testing"

	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/storage"
)

type mockActivityStore struct {
	purchaseUpdates map[string]int64
	actionUpdates   map[string]int64
	failFor         string
}

func (m *mockActivityStore) UpdateLastPurchaseDates(ctx context.Context, q storage.Querier, integrationID string) (int64, error) {
	if integrationID == m.failFor {
		return 0, errors.New("boom")
	}
	return m.purchaseUpdates[integrationID], nil
}

func (m *mockActivityStore) UpdateLastActionDates(ctx context.Context, q storage.Querier, integrationID string) (int64, error) {
	return m.actionUpdates[integrationID], nil
}

type mockIntegrationLister struct {
	integrations []*models.Integration
}

func (m *mockIntegrationLister) List(ctx context.Context) ([]*models.Integration, error) {
	return m.integrations, nil
}

func TestUpdateForIntegration(t *testing.T) {
	store := &mockActivityStore{
		purchaseUpdates: map[string]int64{"int-1": 3},
		actionUpdates:   map[string]int64{"int-1": 5},
	}
	svc := NewActivityService(&mockTxRunner{}, store, &mockIntegrationLister{})

	result, err := svc.UpdateForIntegration(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("UpdateForIntegration failed: %v", err)
	}

	if result.PurchaseDatesUpdated != 3 {
		t.Errorf("Expected 3 purchase updates, got %d", result.PurchaseDatesUpdated)
	}
	if result.ActionDatesUpdated != 5 {
		t.Errorf("Expected 5 action updates, got %d", result.ActionDatesUpdated)
	}
}

func TestUpdateAllContinuesPerIntegration(t *testing.T) {
	store := &mockActivityStore{
		purchaseUpdates: map[string]int64{"int-1": 1, "int-2": 2},
		actionUpdates:   map[string]int64{"int-1": 1, "int-2": 2},
	}
	lister := &mockIntegrationLister{
		integrations: []*models.Integration{{ID: "int-1"}, {ID: "int-2"}},
	}
	svc := NewActivityService(&mockTxRunner{}, store, lister)

	results, err := svc.UpdateAll(context.Background())
	if err != nil {
		t.Fatalf("UpdateAll failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results["int-2"].PurchaseDatesUpdated != 2 {
		t.Errorf("Unexpected result for int-2: %+v", results["int-2"])
	}
}

func TestUpdateAllStopsOnError(t *testing.T) {
	store := &mockActivityStore{
		purchaseUpdates: map[string]int64{"int-1": 1},
		actionUpdates:   map[string]int64{"int-1": 1},
		failFor:         "int-2",
	}
	lister := &mockIntegrationLister{
		integrations: []*models.Integration{{ID: "int-1"}, {ID: "int-2"}},
	}
	svc := NewActivityService(&mockTxRunner{}, store, lister)

	results, err := svc.UpdateAll(context.Background())
	if err == nil {
		t.Fatal("Expected error from failing integration")
	}
	if _, ok := results["int-1"]; !ok {
		t.Error("Expected successful integration result to be kept")
	}
}
