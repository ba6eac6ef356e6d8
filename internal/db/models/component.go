// Package models - component.go defines catalog components and their links to
// teams, tags, container images, and versions.
package models

import "time"

// Component is a deployable unit tracked by the catalog
type Component struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       *string   `db:"description" json:"description,omitempty"`
	RepositoryURL     *string   `db:"repository_url" json:"repository_url,omitempty"`
	ServiceTypeID     *int64    `db:"service_type_id" json:"service_type_id,omitempty"`
	IsManaged         bool      `db:"is_managed" json:"is_managed"`
	IsThirdParty      *bool     `db:"is_third_party" json:"is_third_party,omitempty"`
	TeamIDs           []int64   `db:"-" json:"team_ids"`
	TagIDs            []int64   `db:"-" json:"tag_ids"`
	ContainerImageIDs []int64   `db:"-" json:"container_image_ids"`
	VersionIDs        []int64   `db:"-" json:"version_ids"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
