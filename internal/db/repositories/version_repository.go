// version_repository.go implements the repositories for release versions and the
// environments pinned to them.
package repositories

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	goversion "github.com/hashicorp/go-version"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const versionColumns = `id, name, created_at, updated_at`

// VersionRepository handles version database operations
type VersionRepository struct {
	db Querier
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db Querier) *VersionRepository {
	return &VersionRepository{db: db}
}

// Create inserts a version and links its container images. Run it inside a
// transaction when ContainerImageIDs is non-empty.
func (r *VersionRepository) Create(ctx context.Context, v *models.Version) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO versions (name) VALUES ($1) RETURNING id, created_at, updated_at`, v.Name,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	if err := versionContainerImages.replace(ctx, r.db, v.ID, v.ContainerImageIDs); err != nil {
		return err
	}
	if v.ContainerImageIDs == nil {
		v.ContainerImageIDs = []int64{}
	}
	return nil
}

// GetByID retrieves a version with its container image IDs
func (r *VersionRepository) GetByID(ctx context.Context, id int64) (*models.Version, error) {
	v := &models.Version{}
	found, err := sqlxGet(ctx, r.db, v, `SELECT `+versionColumns+` FROM versions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	if !found {
		return nil, nil
	}
	if v.ContainerImageIDs, err = versionContainerImages.members(ctx, r.db, v.ID); err != nil {
		return nil, err
	}
	return v, nil
}

// List retrieves a page of versions ordered newest first by semantic version.
// Names that do not parse as versions sort after all that do.
func (r *VersionRepository) List(ctx context.Context, limit, offset int) ([]*models.Version, int, error) {
	all := make([]*models.Version, 0)
	if err := sqlxSelect(ctx, r.db, &all, `SELECT `+versionColumns+` FROM versions`); err != nil {
		return nil, 0, fmt.Errorf("failed to list versions: %w", err)
	}
	SortVersionsDesc(all)

	total := len(all)
	page := paginate(all, limit, offset)

	ids := make([]int64, 0, len(page))
	for _, v := range page {
		ids = append(ids, v.ID)
	}
	images, err := versionContainerImages.membersOf(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, v := range page {
		v.ContainerImageIDs = images[v.ID]
	}
	return page, total, nil
}

// Update renames a version and replaces its container images. Reports false
// when it does not exist. Run it inside a transaction.
func (r *VersionRepository) Update(ctx context.Context, v *models.Version) (bool, error) {
	found, err := sqlxGet(ctx, r.db, v,
		`UPDATE versions SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+versionColumns, v.ID, v.Name)
	if err != nil {
		return false, fmt.Errorf("failed to update version: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := versionContainerImages.replace(ctx, r.db, v.ID, v.ContainerImageIDs); err != nil {
		return false, err
	}
	if v.ContainerImageIDs == nil {
		v.ContainerImageIDs = []int64{}
	}
	return true, nil
}

// Delete removes a version and reports whether it existed
func (r *VersionRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM versions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete version: %w", err)
	}
	return deleted, nil
}

// SortVersionsDesc orders versions newest first. Unparseable names go last,
// ordered by name.
func SortVersionsDesc(versions []*models.Version) {
	parsed := make(map[int64]*goversion.Version, len(versions))
	for _, v := range versions {
		if pv, err := goversion.NewVersion(v.Name); err == nil {
			parsed[v.ID] = pv
		}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		vi, iok := parsed[versions[i].ID]
		vj, jok := parsed[versions[j].ID]
		switch {
		case iok && jok:
			return vi.GreaterThan(vj)
		case iok != jok:
			return iok
		default:
			return versions[i].Name < versions[j].Name
		}
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

const environmentColumns = `id, name, description, version_id, created_at, updated_at`

// EnvironmentFilters narrows an environment listing
type EnvironmentFilters struct {
	VersionID *int64
}

// EnvironmentRepository handles environment database operations. (name,
// version_id) is unique; a clash surfaces as a unique violation.
type EnvironmentRepository struct {
	db Querier
}

// NewEnvironmentRepository creates a new EnvironmentRepository
func NewEnvironmentRepository(db Querier) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// Create inserts an environment
func (r *EnvironmentRepository) Create(ctx context.Context, env *models.Environment) error {
	query := `
		INSERT INTO environments (name, description, version_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, env.Name, env.Description, env.VersionID).
		Scan(&env.ID, &env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}
	return nil
}

// GetByID retrieves an environment by ID
func (r *EnvironmentRepository) GetByID(ctx context.Context, id int64) (*models.Environment, error) {
	env := &models.Environment{}
	found, err := sqlxGet(ctx, r.db, env, `SELECT `+environmentColumns+` FROM environments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}
	if !found {
		return nil, nil
	}
	return env, nil
}

// List retrieves a filtered page of environments ordered by name
func (r *EnvironmentRepository) List(ctx context.Context, filters EnvironmentFilters, limit, offset int) ([]*models.Environment, int, error) {
	count := psql.Select("COUNT(*)").From("environments")
	list := psql.Select(environmentColumns).From("environments")
	if filters.VersionID != nil {
		count = count.Where(sq.Eq{"version_id": *filters.VersionID})
		list = list.Where(sq.Eq{"version_id": *filters.VersionID})
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build environment count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count environments: %w", err)
	}

	query, args, err := list.OrderBy("name", "id").Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build environment query: %w", err)
	}
	envs := make([]*models.Environment, 0)
	if err := sqlxSelect(ctx, r.db, &envs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list environments: %w", err)
	}
	return envs, total, nil
}

// Update writes an environment. Reports false when it does not exist.
func (r *EnvironmentRepository) Update(ctx context.Context, env *models.Environment) (bool, error) {
	query := `
		UPDATE environments
		SET name = $2, description = $3, version_id = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + environmentColumns
	found, err := sqlxGet(ctx, r.db, env, query, env.ID, env.Name, env.Description, env.VersionID)
	if err != nil {
		return false, fmt.Errorf("failed to update environment: %w", err)
	}
	return found, nil
}

// Delete removes an environment and reports whether it existed
func (r *EnvironmentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete environment: %w", err)
	}
	return deleted, nil
}
