// registry_repository.go implements the repositories for container registries,
// the credentials used to reach them, and the images pushed to them.
package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const registryCredentialColumns = `id, name, access_key, secret_key, region, registry_provider_id, created_at, updated_at`

// RegistryCredentialRepository handles registry credential database operations.
// SecretKey is stored as given; callers seal it before writing.
type RegistryCredentialRepository struct {
	db Querier
}

// NewRegistryCredentialRepository creates a new RegistryCredentialRepository
func NewRegistryCredentialRepository(db Querier) *RegistryCredentialRepository {
	return &RegistryCredentialRepository{db: db}
}

// Create inserts a credential
func (r *RegistryCredentialRepository) Create(ctx context.Context, cred *models.RegistryCredential) error {
	query := `
		INSERT INTO registry_credentials (name, access_key, secret_key, region, registry_provider_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		cred.Name, cred.AccessKey, cred.SecretKey, cred.Region, cred.RegistryProviderID,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create registry credential: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by ID
func (r *RegistryCredentialRepository) GetByID(ctx context.Context, id int64) (*models.RegistryCredential, error) {
	cred := &models.RegistryCredential{}
	found, err := sqlxGet(ctx, r.db, cred, `SELECT `+registryCredentialColumns+` FROM registry_credentials WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get registry credential: %w", err)
	}
	if !found {
		return nil, nil
	}
	return cred, nil
}

// List retrieves a page of credentials ordered by ID
func (r *RegistryCredentialRepository) List(ctx context.Context, limit, offset int) ([]*models.RegistryCredential, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM registry_credentials`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count registry credentials: %w", err)
	}

	creds := make([]*models.RegistryCredential, 0)
	query := `SELECT ` + registryCredentialColumns + ` FROM registry_credentials ORDER BY id LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &creds, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list registry credentials: %w", err)
	}
	return creds, total, nil
}

// Update writes a credential. Reports false when it does not exist.
func (r *RegistryCredentialRepository) Update(ctx context.Context, cred *models.RegistryCredential) (bool, error) {
	query := `
		UPDATE registry_credentials
		SET name = $2, access_key = $3, secret_key = $4, region = $5, registry_provider_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + registryCredentialColumns
	found, err := sqlxGet(ctx, r.db, cred, query,
		cred.ID, cred.Name, cred.AccessKey, cred.SecretKey, cred.Region, cred.RegistryProviderID)
	if err != nil {
		return false, fmt.Errorf("failed to update registry credential: %w", err)
	}
	return found, nil
}

// Delete removes a credential and reports whether it existed
func (r *RegistryCredentialRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM registry_credentials WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete registry credential: %w", err)
	}
	return deleted, nil
}

const registryColumns = `id, name, url, is_private, registry_provider_id, registry_credentials_id, created_at, updated_at`

// RegistryRepository handles registry database operations
type RegistryRepository struct {
	db Querier
}

// NewRegistryRepository creates a new RegistryRepository
func NewRegistryRepository(db Querier) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// Create inserts a registry
func (r *RegistryRepository) Create(ctx context.Context, reg *models.Registry) error {
	query := `
		INSERT INTO registries (name, url, is_private, registry_provider_id, registry_credentials_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		reg.Name, reg.URL, reg.IsPrivate, reg.RegistryProviderID, reg.RegistryCredentialsID,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	return nil
}

// GetByID retrieves a registry by ID
func (r *RegistryRepository) GetByID(ctx context.Context, id int64) (*models.Registry, error) {
	reg := &models.Registry{}
	found, err := sqlxGet(ctx, r.db, reg, `SELECT `+registryColumns+` FROM registries WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get registry: %w", err)
	}
	if !found {
		return nil, nil
	}
	return reg, nil
}

// List retrieves a page of registries ordered by ID
func (r *RegistryRepository) List(ctx context.Context, limit, offset int) ([]*models.Registry, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM registries`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count registries: %w", err)
	}

	regs := make([]*models.Registry, 0)
	query := `SELECT ` + registryColumns + ` FROM registries ORDER BY id LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &regs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list registries: %w", err)
	}
	return regs, total, nil
}

// Update writes a registry. Reports false when it does not exist.
func (r *RegistryRepository) Update(ctx context.Context, reg *models.Registry) (bool, error) {
	query := `
		UPDATE registries
		SET name = $2, url = $3, is_private = $4, registry_provider_id = $5, registry_credentials_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + registryColumns
	found, err := sqlxGet(ctx, r.db, reg, query,
		reg.ID, reg.Name, reg.URL, reg.IsPrivate, reg.RegistryProviderID, reg.RegistryCredentialsID)
	if err != nil {
		return false, fmt.Errorf("failed to update registry: %w", err)
	}
	return found, nil
}

// Delete removes a registry and reports whether it existed
func (r *RegistryRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM registries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete registry: %w", err)
	}
	return deleted, nil
}

const containerImageColumns = `id, name, tag, registry_id, pushed_at, created_at, updated_at`

// ContainerImageFilters narrows a container image listing
type ContainerImageFilters struct {
	RegistryID *int64
	Name       *string
}

// ContainerImageRepository handles container image database operations
type ContainerImageRepository struct {
	db Querier
}

// NewContainerImageRepository creates a new ContainerImageRepository
func NewContainerImageRepository(db Querier) *ContainerImageRepository {
	return &ContainerImageRepository{db: db}
}

// Create inserts an image. A zero PushedAt defaults to now.
func (r *ContainerImageRepository) Create(ctx context.Context, img *models.ContainerImage) error {
	query := `
		INSERT INTO container_images (name, tag, registry_id, pushed_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		RETURNING id, pushed_at, created_at, updated_at
	`
	var pushedAt any
	if !img.PushedAt.IsZero() {
		pushedAt = img.PushedAt
	}
	err := r.db.QueryRowxContext(ctx, query, img.Name, img.Tag, img.RegistryID, pushedAt).
		Scan(&img.ID, &img.PushedAt, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create container image: %w", err)
	}
	return nil
}

// GetByID retrieves an image by ID
func (r *ContainerImageRepository) GetByID(ctx context.Context, id int64) (*models.ContainerImage, error) {
	img := &models.ContainerImage{}
	found, err := sqlxGet(ctx, r.db, img, `SELECT `+containerImageColumns+` FROM container_images WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get container image: %w", err)
	}
	if !found {
		return nil, nil
	}
	return img, nil
}

// List retrieves a filtered page of images, most recently pushed first
func (r *ContainerImageRepository) List(ctx context.Context, filters ContainerImageFilters, limit, offset int) ([]*models.ContainerImage, int, error) {
	where := sq.And{}
	if filters.RegistryID != nil {
		where = append(where, sq.Eq{"registry_id": *filters.RegistryID})
	}
	if filters.Name != nil {
		where = append(where, sq.Eq{"name": *filters.Name})
	}

	count := psql.Select("COUNT(*)").From("container_images")
	list := psql.Select(containerImageColumns).From("container_images")
	if len(where) > 0 {
		count = count.Where(where)
		list = list.Where(where)
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build container image count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count container images: %w", err)
	}

	query, args, err := list.OrderBy("pushed_at DESC", "id DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build container image query: %w", err)
	}
	imgs := make([]*models.ContainerImage, 0)
	if err := sqlxSelect(ctx, r.db, &imgs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list container images: %w", err)
	}
	return imgs, total, nil
}

// Update writes an image. Reports false when it does not exist.
func (r *ContainerImageRepository) Update(ctx context.Context, img *models.ContainerImage) (bool, error) {
	query := `
		UPDATE container_images
		SET name = $2, tag = $3, registry_id = $4, pushed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + containerImageColumns
	found, err := sqlxGet(ctx, r.db, img, query, img.ID, img.Name, img.Tag, img.RegistryID, img.PushedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update container image: %w", err)
	}
	return found, nil
}

// Delete removes an image and reports whether it existed
func (r *ContainerImageRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM container_images WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete container image: %w", err)
	}
	return deleted, nil
}
