// Package models - company.go defines the Company model, the global record of a
// tenant. Every company owns exactly one database schema named from its ID.
package models

import "time"

// Company represents a tenant in the global registry
type Company struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
