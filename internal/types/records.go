// Package types defines the raw wire shapes shared between the Custobar
// client and the ingestion writer.
package types

import "github.com/shopspring/decimal"

// EntityKind identifies one of the three Custobar data collections.
type EntityKind string

const (
	KindCustomers EntityKind = "customers"
	KindSales     EntityKind = "sales"
	KindEvents    EntityKind = "events"
)

// CustomerRecord is a raw customer row as returned by the Custobar
// customers endpoint. Field names match the upstream payload.
type CustomerRecord struct {
	ExternalID       string   `json:"external_id"`
	DateJoined       string   `json:"date_joined"`
	LastPurchaseDate string   `json:"last_purchase_date"`
	LastActionDate   string   `json:"last_action_date"`
	LastLogin        string   `json:"last_login"`
	CanEmail         bool     `json:"can_email"`
	City             string   `json:"city"`
	Country          string   `json:"country"`
	Gender           string   `json:"gender"`
	Language         string   `json:"language"`
	Tags             []string `json:"tags"`
	MailingLists     []string `json:"mailing_lists"`
}

// SaleRecord is a raw sale row as returned by the Custobar sales endpoint.
type SaleRecord struct {
	CustomerID string          `json:"customer_id"`
	ExternalID string          `json:"external_id"`
	Date       string          `json:"date"`
	Products   []string        `json:"products"`
	Total      decimal.Decimal `json:"total"`
	State      string          `json:"state"`
}

// EventRecord is a raw event row as returned by the Custobar events endpoint.
type EventRecord struct {
	CustomerID string `json:"customer_id"`
	Type       string `json:"type"`
	Date       string `json:"date"`
	UTMSource  string `json:"utm_source"`
	UTMMedium  string `json:"utm_medium"`
	ProductID  string `json:"product_id"`
	Path       string `json:"path"`
}
