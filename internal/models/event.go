package models

import "time"

// Attribution holds the optional campaign attribution data of an event.
type Attribution struct {
	UTMSource *string `json:"utm_source"`
	UTMMedium *string `json:"utm_medium"`
}

// Event represents a single engagement event (visit, MAIL_OPEN, MAIL_CLICK,
// BROWSE, ...) pulled from the Custobar events endpoint. Events carry no
// natural dedup key: re-ingestion may duplicate rows.
type Event struct {
	ID            string      `json:"id" db:"id"`
	IntegrationID string      `json:"integrationId" db:"integration_id"`
	ExternalID    string      `json:"cbId" db:"cb_id"`
	EventType     string      `json:"eventType" db:"event_type"`
	Date          *time.Time  `json:"date,omitempty" db:"date"`
	Attribution   Attribution `json:"attribution" db:"utm_data"`
	ProductID     *string     `json:"productId,omitempty" db:"product_id"`
	Path          *string     `json:"path,omitempty" db:"path"`
}

// Well-known event types referenced by the aggregation engine.
const (
	EventTypeVisit     = "visit"
	EventTypeBrowse    = "BROWSE"
	EventTypeMailOpen  = "MAIL_OPEN"
	EventTypeMailClick = "MAIL_CLICK"
)
