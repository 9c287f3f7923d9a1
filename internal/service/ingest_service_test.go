package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/storage"
	"github.com/custobar-insights/internal/types"
)

// Mock stores for testing

type mockTxRunner struct {
	calls int
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.calls++
	return fn(nil)
}

type mockCustomerWriter struct {
	upserted []*models.Customer
}

func (m *mockCustomerWriter) Upsert(ctx context.Context, q storage.Querier, customer *models.Customer) error {
	m.upserted = append(m.upserted, customer)
	return nil
}

type mockTransactionWriter struct {
	existing map[string]bool
	inserted []*models.Transaction
}

func (m *mockTransactionWriter) Exists(ctx context.Context, q storage.Querier, integrationID, externalID, saleExternalID string) (bool, error) {
	return m.existing[externalID+"/"+saleExternalID], nil
}

// Insert marks the pair as existing, mirroring an insert becoming visible to
// later reads inside the same transaction.
func (m *mockTransactionWriter) Insert(ctx context.Context, q storage.Querier, transaction *models.Transaction) error {
	m.inserted = append(m.inserted, transaction)
	m.existing[transaction.ExternalID+"/"+transaction.SaleExternalID] = true
	return nil
}

type mockEventWriter struct {
	inserted []*models.Event
}

func (m *mockEventWriter) Insert(ctx context.Context, q storage.Querier, event *models.Event) error {
	m.inserted = append(m.inserted, event)
	return nil
}

func newIngestService() (*IngestService, *mockCustomerWriter, *mockTransactionWriter, *mockEventWriter) {
	customers := &mockCustomerWriter{}
	transactions := &mockTransactionWriter{existing: map[string]bool{}}
	events := &mockEventWriter{}
	svc := NewIngestService(&mockTxRunner{}, customers, transactions, events)
	return svc, customers, transactions, events
}

func TestUpsertCustomersParsesDates(t *testing.T) {
	svc, customers, _, _ := newIngestService()

	result, err := svc.UpsertCustomers(context.Background(), "int-1", []types.CustomerRecord{
		{
			ExternalID: "cb-1",
			DateJoined: "2024-03-15T10:30:00",
			LastLogin:  "2024-05-01T08:00:00",
			CanEmail:   true,
			City:       "Helsinki",
			Tags:       []string{"vip"},
		},
	})
	if err != nil {
		t.Fatalf("UpsertCustomers failed: %v", err)
	}

	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}
	if len(customers.upserted) != 1 {
		t.Fatalf("Expected 1 upsert, got %d", len(customers.upserted))
	}

	c := customers.upserted[0]
	if c.SignupDate == nil || c.SignupDate.Format("2006-01-02 15:04:05") != "2024-03-15 10:30:00" {
		t.Errorf("Unexpected signup date: %v", c.SignupDate)
	}
	if c.LastLogin == nil {
		t.Error("Expected last login to be set")
	}
	if c.LastPurchaseDate != nil {
		t.Errorf("Expected nil last purchase date, got %v", c.LastPurchaseDate)
	}
	if c.City == nil || *c.City != "Helsinki" {
		t.Errorf("Unexpected city: %v", c.City)
	}
}

func TestUpsertCustomersBadDateFailsBatch(t *testing.T) {
	svc, _, _, _ := newIngestService()

	_, err := svc.UpsertCustomers(context.Background(), "int-1", []types.CustomerRecord{
		{ExternalID: "cb-1", DateJoined: "2024-03-15T10:30:00"},
		{ExternalID: "cb-2", DateJoined: "15.03.2024"},
	})
	if err == nil {
		t.Fatal("Expected error for malformed customer date")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryDateParse) {
		t.Errorf("Expected date parse error, got %v", err)
	}
}

func TestUpsertCustomersSkipsMissingExternalID(t *testing.T) {
	svc, customers, _, _ := newIngestService()

	result, err := svc.UpsertCustomers(context.Background(), "int-1", []types.CustomerRecord{
		{ExternalID: ""},
		{ExternalID: "cb-1"},
	})
	if err != nil {
		t.Fatalf("UpsertCustomers failed: %v", err)
	}

	if result.Skipped != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 skipped and 1 processed, got %+v", result)
	}
	if len(customers.upserted) != 1 {
		t.Errorf("Expected 1 upsert, got %d", len(customers.upserted))
	}
}

func TestUpsertTransactionsDeduplicates(t *testing.T) {
	svc, _, transactions, _ := newIngestService()
	transactions.existing["cust-1/sale-1"] = true

	result, err := svc.UpsertTransactions(context.Background(), "int-1", []types.SaleRecord{
		{CustomerID: "cust-1", ExternalID: "sale-1", Total: decimal.NewFromInt(10)},
		{CustomerID: "cust-1", ExternalID: "sale-2", Date: "2024-06-01T12:00:00", Total: decimal.NewFromInt(25)},
	})
	if err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if result.Duplicates != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 duplicate and 1 processed, got %+v", result)
	}
	if len(transactions.inserted) != 1 {
		t.Fatalf("Expected 1 insert, got %d", len(transactions.inserted))
	}

	tx := transactions.inserted[0]
	if tx.SaleExternalID != "sale-2" || tx.ExternalID != "cust-1" {
		t.Errorf("Unexpected transaction identity: %+v", tx)
	}
	if tx.TransactionDate == nil {
		t.Error("Expected transaction date to be parsed")
	}
}

func TestUpsertTransactionsDeduplicatesWithinBatch(t *testing.T) {
	svc, _, transactions, _ := newIngestService()

	// The same sale appearing twice in one batch stores one row and counts
	// the repeat as a duplicate.
	result, err := svc.UpsertTransactions(context.Background(), "int-1", []types.SaleRecord{
		{CustomerID: "cust-1", ExternalID: "sale-1", Total: decimal.NewFromInt(10)},
		{CustomerID: "cust-1", ExternalID: "sale-1", Total: decimal.NewFromInt(10)},
	})
	if err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if result.Processed != 1 || result.Duplicates != 1 {
		t.Errorf("Expected 1 processed and 1 duplicate, got %+v", result)
	}
	if len(transactions.inserted) != 1 {
		t.Errorf("Expected 1 insert, got %d", len(transactions.inserted))
	}
}

func TestUpsertTransactionsSkipsMissingIDs(t *testing.T) {
	svc, _, transactions, _ := newIngestService()

	result, err := svc.UpsertTransactions(context.Background(), "int-1", []types.SaleRecord{
		{CustomerID: "", ExternalID: "sale-1"},
		{CustomerID: "cust-1", ExternalID: ""},
	})
	if err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if result.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", result.Skipped)
	}
	if len(transactions.inserted) != 0 {
		t.Errorf("Expected no inserts, got %d", len(transactions.inserted))
	}
}

func TestUpsertTransactionsBadDateStoredNull(t *testing.T) {
	svc, _, transactions, _ := newIngestService()

	result, err := svc.UpsertTransactions(context.Background(), "int-1", []types.SaleRecord{
		{CustomerID: "cust-1", ExternalID: "sale-1", Date: "not-a-date", Total: decimal.NewFromInt(5)},
	})
	if err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}
	if transactions.inserted[0].TransactionDate != nil {
		t.Errorf("Expected NULL date, got %v", transactions.inserted[0].TransactionDate)
	}
}

func TestInsertEventsSkipsMissingCustomer(t *testing.T) {
	svc, _, _, events := newIngestService()

	result, err := svc.InsertEvents(context.Background(), "int-1", []types.EventRecord{
		{CustomerID: "", Type: "visit"},
		{CustomerID: "cust-1", Type: "MAIL_OPEN", Date: "2024-06-01T12:00:00", UTMSource: "newsletter"},
	})
	if err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	if result.Skipped != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 skipped and 1 processed, got %+v", result)
	}
	if len(events.inserted) != 1 {
		t.Fatalf("Expected 1 insert, got %d", len(events.inserted))
	}

	e := events.inserted[0]
	if e.EventType != "MAIL_OPEN" || e.ExternalID != "cust-1" {
		t.Errorf("Unexpected event: %+v", e)
	}
	if e.Attribution.UTMSource == nil || *e.Attribution.UTMSource != "newsletter" {
		t.Errorf("Unexpected attribution: %+v", e.Attribution)
	}
	if e.Attribution.UTMMedium != nil {
		t.Error("Expected nil UTM medium")
	}
}
