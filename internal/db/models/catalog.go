// Package models - catalog.go defines the small name-only catalog entries that
// live in every tenant schema: tags, teams, cloud providers, registry providers.
package models

import "time"

// NamedEntry is a catalog row that carries nothing but a name
type NamedEntry struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ServiceType classifies components (API, Worker, Database, ...)
type ServiceType struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	IsManaged   bool      `db:"is_managed" json:"is_managed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
