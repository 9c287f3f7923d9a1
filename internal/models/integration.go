// Package models defines the persisted entities of the insights service.
package models

import "time"

// Integration represents a Custobar integration owned by a user.
// All other entities are scoped by the integration id.
type Integration struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	APIKey    string    `json:"-" db:"api_key"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
