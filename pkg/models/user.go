// Package models contains shared data models used across the GeoScan codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the dashboard. Every job, result, ledger entry and
// API key belongs to a user.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
