// company_repository.go implements CompanyRepository, the global registry of
// tenants. A company row is the logical half of a tenant; its schema is the
// physical half and is managed by the tenancy package.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const companyColumns = `id, name, created_at, updated_at`

// CompanyRepository handles company database operations
type CompanyRepository struct {
	db Querier
}

// NewCompanyRepository creates a new CompanyRepository
func NewCompanyRepository(db Querier) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a company and fills in its generated ID and timestamps
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, company.Name).Scan(
		&company.ID,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	return r.get(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a company and locks its row until the surrounding
// transaction ends. Only meaningful when the repository is bound to a *sqlx.Tx.
func (r *CompanyRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Company, error) {
	return r.get(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1 FOR UPDATE`, id)
}

func (r *CompanyRepository) get(ctx context.Context, query string, id int64) (*models.Company, error) {
	company := &models.Company{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.CreatedAt,
		&company.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return company, nil
}

// List retrieves a page of companies ordered by ID, along with the total count
func (r *CompanyRepository) List(ctx context.Context, limit, offset int) ([]*models.Company, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count companies: %w", err)
	}

	companies := make([]*models.Company, 0)
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY id LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &companies, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list companies: %w", err)
	}

	return companies, total, nil
}

// ListCreatedBefore returns every company created before cutoff
func (r *CompanyRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Company, error) {
	companies := make([]*models.Company, 0)
	query := `SELECT ` + companyColumns + ` FROM companies WHERE created_at < $1 ORDER BY id`
	if err := sqlxSelect(ctx, r.db, &companies, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// Rename changes a company's display name. Returns nil when the company does not exist.
func (r *CompanyRepository) Rename(ctx context.Context, id int64, name string) (*models.Company, error) {
	query := `
		UPDATE companies
		SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + companyColumns

	company := &models.Company{}
	err := r.db.QueryRowxContext(ctx, query, id, name).Scan(
		&company.ID,
		&company.Name,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to rename company: %w", err)
	}

	return company, nil
}

// Delete removes a company. Lookup rows referencing it cascade. Reports whether
// a row was deleted.
func (r *CompanyRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete company: %w", err)
	}
	return deleted, nil
}
