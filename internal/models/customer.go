package models

import "time"

// Customer represents a customer record pulled from Custobar, identified
// by its external id (cb_id) within one integration.
//
// LastPurchaseDate and LastActionDate are derived fields: they are only
// mutated by the activity updater (from transaction and event history),
// or overwritten by ingestion when the upstream payload carries them.
type Customer struct {
	ID               string     `json:"id" db:"id"`
	IntegrationID    string     `json:"integrationId" db:"integration_id"`
	ExternalID       string     `json:"cbId" db:"cb_id"`
	SignupDate       *time.Time `json:"signupDate,omitempty" db:"signup_date"`
	LastPurchaseDate *time.Time `json:"lastPurchaseDate,omitempty" db:"last_purchase_date"`
	LastActionDate   *time.Time `json:"lastActionDate,omitempty" db:"last_action_date"`
	LastLogin        *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CanEmail         bool       `json:"canEmail" db:"can_email"`
	City             *string    `json:"city,omitempty" db:"city"`
	Country          *string    `json:"country,omitempty" db:"country"`
	Gender           *string    `json:"gender,omitempty" db:"gender"`
	Language         *string    `json:"language,omitempty" db:"language"`
	Tags             []string   `json:"tags,omitempty" db:"tags"`
	MailingLists     []string   `json:"mailingLists,omitempty" db:"mailing_lists"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
}
