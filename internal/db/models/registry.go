// Package models - registry.go defines container registries and the credentials
// used to reach them. Credential secrets are stored encrypted and never serialised.
package models

import "time"

// RegistryCredential holds access keys for a private registry
type RegistryCredential struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	AccessKey          string    `db:"access_key" json:"access_key"`
	SecretKey          string    `db:"secret_key" json:"-"` // ciphertext at rest
	Region             string    `db:"region" json:"region"`
	RegistryProviderID *int64    `db:"registry_provider_id" json:"registry_provider_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Registry is a container registry endpoint
type Registry struct {
	ID                    int64     `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	URL                   string    `db:"url" json:"url"`
	IsPrivate             bool      `db:"is_private" json:"is_private"`
	RegistryProviderID    *int64    `db:"registry_provider_id" json:"registry_provider_id,omitempty"`
	RegistryCredentialsID *int64    `db:"registry_credentials_id" json:"registry_credentials_id,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// ContainerImage is an image tag pushed to a registry
type ContainerImage struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Tag        string    `db:"tag" json:"tag"`
	RegistryID *int64    `db:"registry_id" json:"registry_id,omitempty"`
	PushedAt   time.Time `db:"pushed_at" json:"pushed_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
