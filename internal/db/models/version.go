// Package models - version.go defines release versions and the environments that
// run them.
package models

import "time"

// Version is a named release that groups container images
type Version struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	ContainerImageIDs []int64   `db:"-" json:"container_image_ids"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Environment is a deployment target pinned to a version
type Environment struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	VersionID   int64     `db:"version_id" json:"version_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
