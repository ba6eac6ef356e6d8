// catalog_repository.go implements the repositories for the small reference
// catalogs of a tenant: the name-only tables (tags, teams, cloud providers,
// registry providers) and service types.
package repositories

import (
	"context"
	"fmt"

	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

// CatalogTable names one of the name-only catalog tables
type CatalogTable string

const (
	TableTags              CatalogTable = "tags"
	TableTeams             CatalogTable = "teams"
	TableCloudProviders    CatalogTable = "cloud_providers"
	TableRegistryProviders CatalogTable = "registry_providers"
)

const namedEntryColumns = `id, name, created_at, updated_at`

// NamedEntryRepository handles one name-only catalog table
type NamedEntryRepository struct {
	db    Querier
	table CatalogTable
}

// NewNamedEntryRepository creates a repository over table
func NewNamedEntryRepository(db Querier, table CatalogTable) *NamedEntryRepository {
	return &NamedEntryRepository{db: db, table: table}
}

// Create inserts an entry
func (r *NamedEntryRepository) Create(ctx context.Context, name string) (*models.NamedEntry, error) {
	entry := &models.NamedEntry{}
	query := `INSERT INTO ` + string(r.table) + ` (name) VALUES ($1) RETURNING ` + namedEntryColumns
	if err := r.db.QueryRowxContext(ctx, query, name).StructScan(entry); err != nil {
		return nil, fmt.Errorf("failed to create %s entry: %w", r.table, err)
	}
	return entry, nil
}

// GetByID retrieves an entry by ID
func (r *NamedEntryRepository) GetByID(ctx context.Context, id int64) (*models.NamedEntry, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByName retrieves an entry by name
func (r *NamedEntryRepository) GetByName(ctx context.Context, name string) (*models.NamedEntry, error) {
	return r.get(ctx, `WHERE name = $1`, name)
}

func (r *NamedEntryRepository) get(ctx context.Context, where string, arg any) (*models.NamedEntry, error) {
	entry := &models.NamedEntry{}
	found, err := sqlxGet(ctx, r.db, entry, `SELECT `+namedEntryColumns+` FROM `+string(r.table)+` `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s entry: %w", r.table, err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// List retrieves a page of entries ordered by name
func (r *NamedEntryRepository) List(ctx context.Context, limit, offset int) ([]*models.NamedEntry, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM `+string(r.table)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", r.table, err)
	}

	entries := make([]*models.NamedEntry, 0)
	query := `SELECT ` + namedEntryColumns + ` FROM ` + string(r.table) + ` ORDER BY name, id LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &entries, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	return entries, total, nil
}

// Update renames an entry. Returns nil when it does not exist.
func (r *NamedEntryRepository) Update(ctx context.Context, id int64, name string) (*models.NamedEntry, error) {
	entry := &models.NamedEntry{}
	query := `UPDATE ` + string(r.table) + ` SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + namedEntryColumns
	found, err := sqlxGet(ctx, r.db, entry, query, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s entry: %w", r.table, err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// Delete removes an entry and reports whether it existed
func (r *NamedEntryRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM `+string(r.table)+` WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s entry: %w", r.table, err)
	}
	return deleted, nil
}

const serviceTypeColumns = `id, name, description, is_managed, created_at, updated_at`

// ServiceTypeRepository handles service type database operations
type ServiceTypeRepository struct {
	db Querier
}

// NewServiceTypeRepository creates a new ServiceTypeRepository
func NewServiceTypeRepository(db Querier) *ServiceTypeRepository {
	return &ServiceTypeRepository{db: db}
}

// Create inserts a service type
func (r *ServiceTypeRepository) Create(ctx context.Context, st *models.ServiceType) error {
	query := `
		INSERT INTO service_types (name, description, is_managed)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, st.Name, st.Description, st.IsManaged).
		Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service type: %w", err)
	}
	return nil
}

// GetByID retrieves a service type by ID
func (r *ServiceTypeRepository) GetByID(ctx context.Context, id int64) (*models.ServiceType, error) {
	st := &models.ServiceType{}
	found, err := sqlxGet(ctx, r.db, st, `SELECT `+serviceTypeColumns+` FROM service_types WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get service type: %w", err)
	}
	if !found {
		return nil, nil
	}
	return st, nil
}

// List retrieves a page of service types ordered by name
func (r *ServiceTypeRepository) List(ctx context.Context, limit, offset int) ([]*models.ServiceType, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM service_types`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count service types: %w", err)
	}

	types := make([]*models.ServiceType, 0)
	query := `SELECT ` + serviceTypeColumns + ` FROM service_types ORDER BY name LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &types, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list service types: %w", err)
	}
	return types, total, nil
}

// Update writes a service type. Reports false when it does not exist.
func (r *ServiceTypeRepository) Update(ctx context.Context, st *models.ServiceType) (bool, error) {
	query := `
		UPDATE service_types
		SET name = $2, description = $3, is_managed = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + serviceTypeColumns
	found, err := sqlxGet(ctx, r.db, st, query, st.ID, st.Name, st.Description, st.IsManaged)
	if err != nil {
		return false, fmt.Errorf("failed to update service type: %w", err)
	}
	return found, nil
}

// Delete removes a service type and reports whether it existed
func (r *ServiceTypeRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM service_types WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete service type: %w", err)
	}
	return deleted, nil
}
