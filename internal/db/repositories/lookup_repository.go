// lookup_repository.go implements LookupRepository over the global
// user_company_lookup table, the email to company index that routes a login to
// the right tenant schema.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const lookupColumns = `email, company_id, created_at, updated_at`

// LookupRepository handles identity lookup database operations
type LookupRepository struct {
	db Querier
}

// NewLookupRepository creates a new LookupRepository
func NewLookupRepository(db Querier) *LookupRepository {
	return &LookupRepository{db: db}
}

// Create inserts a lookup row. The email must already be lower-cased. A duplicate
// email surfaces as a unique violation; an unknown company as a foreign key
// violation. Both are returned wrapped so callers can test them.
func (r *LookupRepository) Create(ctx context.Context, email string, companyID int64) (*models.UserCompanyLookup, error) {
	query := `
		INSERT INTO user_company_lookup (email, company_id)
		VALUES ($1, $2)
		RETURNING ` + lookupColumns

	entry := &models.UserCompanyLookup{}
	if err := r.db.QueryRowxContext(ctx, query, email, companyID).StructScan(entry); err != nil {
		return nil, fmt.Errorf("failed to create identity lookup: %w", err)
	}
	return entry, nil
}

// GetByEmail retrieves the lookup row for an email
func (r *LookupRepository) GetByEmail(ctx context.Context, email string) (*models.UserCompanyLookup, error) {
	entry := &models.UserCompanyLookup{}
	found, err := sqlxGet(ctx, r.db, entry,
		`SELECT `+lookupColumns+` FROM user_company_lookup WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// Delete removes the lookup row for an email and reports whether one existed
func (r *LookupRepository) Delete(ctx context.Context, email string) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM user_company_lookup WHERE email = $1`, email)
	if err != nil {
		return false, fmt.Errorf("failed to delete identity lookup: %w", err)
	}
	return deleted, nil
}

// CountByCompany returns how many accounts are registered to a company
func (r *LookupRepository) CountByCompany(ctx context.Context, companyID int64) (int, error) {
	var count int
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM user_company_lookup WHERE company_id = $1`, companyID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identity lookups: %w", err)
	}
	return count, nil
}

// ListByCompany returns every lookup row for a company
func (r *LookupRepository) ListByCompany(ctx context.Context, companyID int64) ([]*models.UserCompanyLookup, error) {
	entries := make([]*models.UserCompanyLookup, 0)
	err := sqlxSelect(ctx, r.db, &entries,
		`SELECT `+lookupColumns+` FROM user_company_lookup WHERE company_id = $1 ORDER BY email`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity lookups: %w", err)
	}
	return entries, nil
}

// DeleteIfOlder removes a lookup row only when it was created before cutoff, so
// a registration still in flight is never reaped.
func (r *LookupRepository) DeleteIfOlder(ctx context.Context, email string, cutoff time.Time) (bool, error) {
	deleted, err := execAffected(ctx, r.db,
		`DELETE FROM user_company_lookup WHERE email = $1 AND created_at < $2`, email, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to delete identity lookup: %w", err)
	}
	return deleted, nil
}
