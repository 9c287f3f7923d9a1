// Package service implements the ingestion, aggregation and pipeline logic.
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/storage"
	"github.com/custobar-insights/internal/types"
)

// customerDateLayout is the exact timestamp layout customer payloads carry.
// Customer dates that do not match it fail the whole batch.
const customerDateLayout = "2006-01-02T15:04:05"

// flexibleDateLayouts are tried in order for sale and event dates. A date
// matching none of them is stored as NULL instead of failing the batch.
var flexibleDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TxRunner runs a function inside a database transaction
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// IngestCustomerStore persists customers during ingestion
type IngestCustomerStore interface {
	Upsert(ctx context.Context, q storage.Querier, customer *models.Customer) error
}

// IngestTransactionStore persists transactions during ingestion
type IngestTransactionStore interface {
	Exists(ctx context.Context, q storage.Querier, integrationID, externalID, saleExternalID string) (bool, error)
	Insert(ctx context.Context, q storage.Querier, transaction *models.Transaction) error
}

// IngestEventStore persists events during ingestion
type IngestEventStore interface {
	Insert(ctx context.Context, q storage.Querier, event *models.Event) error
}

// IngestResult summarizes one ingestion batch
type IngestResult struct {
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
}

// IngestService writes fetched Custobar records into the store. Each batch
// runs in a single transaction: a failing record rolls back the whole batch
// so re-ingestion can safely retry it.
type IngestService struct {
	db           TxRunner
	customerRepo IngestCustomerStore
	txRepo       IngestTransactionStore
	eventRepo    IngestEventStore
}

// NewIngestService creates a new ingest service
func NewIngestService(
	db TxRunner,
	customerRepo IngestCustomerStore,
	txRepo IngestTransactionStore,
	eventRepo IngestEventStore,
) *IngestService {
	return &IngestService{
		db:           db,
		customerRepo: customerRepo,
		txRepo:       txRepo,
		eventRepo:    eventRepo,
	}
}

// UpsertCustomers upserts a batch of customer records for an integration.
// A customer date that fails to parse aborts the batch: no partial customer
// state is committed.
func (s *IngestService) UpsertCustomers(ctx context.Context, integrationID string, records []types.CustomerRecord) (*IngestResult, error) {
	result := &IngestResult{}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, record := range records {
			if record.ExternalID == "" {
				result.Skipped++
				continue
			}

			customer, err := customerFromRecord(integrationID, record)
			if err != nil {
				return err
			}
			if err := s.customerRepo.Upsert(ctx, tx, customer); err != nil {
				return err
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logIngest(ctx, "customers", result)
	return result, nil
}

// UpsertTransactions inserts a batch of sale records for an integration.
// Sales already present under the same (cb_id, sale external id) pair are
// counted as duplicates and left untouched; sales without ids are skipped.
func (s *IngestService) UpsertTransactions(ctx context.Context, integrationID string, records []types.SaleRecord) (*IngestResult, error) {
	result := &IngestResult{}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, record := range records {
			if record.CustomerID == "" || record.ExternalID == "" {
				result.Skipped++
				continue
			}

			exists, err := s.txRepo.Exists(ctx, tx, integrationID, record.CustomerID, record.ExternalID)
			if err != nil {
				return err
			}
			if exists {
				result.Duplicates++
				continue
			}

			transaction := &models.Transaction{
				IntegrationID:   integrationID,
				ExternalID:      record.CustomerID,
				SaleExternalID:  record.ExternalID,
				TransactionDate: parseFlexibleDate(ctx, "sale date", record.Date),
				Revenue:         record.Total,
				ProductIDs:      record.Products,
			}
			if record.State != "" {
				state := record.State
				transaction.ActionType = &state
			}

			if err := s.txRepo.Insert(ctx, tx, transaction); err != nil {
				return err
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logIngest(ctx, "sales", result)
	return result, nil
}

// InsertEvents inserts a batch of event records for an integration. Events
// are append-only; records without a customer id are skipped.
func (s *IngestService) InsertEvents(ctx context.Context, integrationID string, records []types.EventRecord) (*IngestResult, error) {
	result := &IngestResult{}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, record := range records {
			if record.CustomerID == "" {
				result.Skipped++
				continue
			}

			event := &models.Event{
				IntegrationID: integrationID,
				ExternalID:    record.CustomerID,
				EventType:     record.Type,
				Date:          parseFlexibleDate(ctx, "event date", record.Date),
				Attribution: models.Attribution{
					UTMSource: nilIfEmpty(record.UTMSource),
					UTMMedium: nilIfEmpty(record.UTMMedium),
				},
				ProductID: nilIfEmpty(record.ProductID),
				Path:      nilIfEmpty(record.Path),
			}

			if err := s.eventRepo.Insert(ctx, tx, event); err != nil {
				return err
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logIngest(ctx, "events", result)
	return result, nil
}

// customerFromRecord converts a raw customer record, parsing every date with
// the strict customer layout
func customerFromRecord(integrationID string, record types.CustomerRecord) (*models.Customer, error) {
	signupDate, err := parseCustomerDate("date_joined", record.DateJoined)
	if err != nil {
		return nil, err
	}
	lastPurchase, err := parseCustomerDate("last_purchase_date", record.LastPurchaseDate)
	if err != nil {
		return nil, err
	}
	lastAction, err := parseCustomerDate("last_action_date", record.LastActionDate)
	if err != nil {
		return nil, err
	}
	lastLogin, err := parseCustomerDate("last_login", record.LastLogin)
	if err != nil {
		return nil, err
	}

	return &models.Customer{
		IntegrationID:    integrationID,
		ExternalID:       record.ExternalID,
		SignupDate:       signupDate,
		LastPurchaseDate: lastPurchase,
		LastActionDate:   lastAction,
		LastLogin:        lastLogin,
		CanEmail:         record.CanEmail,
		City:             nilIfEmpty(record.City),
		Country:          nilIfEmpty(record.Country),
		Gender:           nilIfEmpty(record.Gender),
		Language:         nilIfEmpty(record.Language),
		Tags:             record.Tags,
		MailingLists:     record.MailingLists,
	}, nil
}

// parseCustomerDate parses a customer date with the strict layout. Empty
// values are allowed and stored as NULL.
func parseCustomerDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(customerDateLayout, value)
	if err != nil {
		return nil, apperrors.NewDateParseError(field, value, err)
	}
	return &t, nil
}

// parseFlexibleDate parses a sale or event date, trying each known layout.
// Unparseable values are logged and stored as NULL.
func parseFlexibleDate(ctx context.Context, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"field": field,
		"value": value,
	}).Warn("Unparseable date, storing NULL")
	return nil
}

func logIngest(ctx context.Context, kind string, result *IngestResult) {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"kind":       kind,
		"processed":  result.Processed,
		"skipped":    result.Skipped,
		"duplicates": result.Duplicates,
	}).Info("Ingested batch")
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
