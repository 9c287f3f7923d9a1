package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single sale pulled from the Custobar sales
// endpoint. A transaction is immutable once ingested: the triple
// (integration, cb_id, sale external id) identifies at most one row and
// re-ingestion of an already-seen triple is a no-op.
type Transaction struct {
	ID              string          `json:"id" db:"id"`
	IntegrationID   string          `json:"integrationId" db:"integration_id"`
	ExternalID      string          `json:"cbId" db:"cb_id"`
	SaleExternalID  string          `json:"saleExternalId" db:"sale_external_id"`
	TransactionDate *time.Time      `json:"transactionDate,omitempty" db:"transaction_date"`
	Revenue         decimal.Decimal `json:"revenue" db:"revenue"`
	ProductIDs      []string        `json:"productIds,omitempty" db:"product_ids"`
	ActionType      *string         `json:"actionType,omitempty" db:"action_type"`
}
