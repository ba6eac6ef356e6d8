// component_repository.go implements ComponentRepository. A component carries
// four association sets (teams, tags, container images, versions) that are
// always read and written together with the row.
package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const componentColumns = `id, name, description, repository_url, service_type_id, is_managed, is_third_party, created_at, updated_at`

// ComponentFilters narrows a component listing
type ComponentFilters struct {
	ServiceTypeID *int64
	TeamID        *int64
	IsManaged     *bool
}

// ComponentRepository handles component database operations. Writes touch
// several tables; run them inside a transaction.
type ComponentRepository struct {
	db Querier
}

// NewComponentRepository creates a new ComponentRepository
func NewComponentRepository(db Querier) *ComponentRepository {
	return &ComponentRepository{db: db}
}

// Create inserts a component and its associations
func (r *ComponentRepository) Create(ctx context.Context, c *models.Component) error {
	query := `
		INSERT INTO components (name, description, repository_url, service_type_id, is_managed, is_third_party)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		c.Name, c.Description, c.RepositoryURL, c.ServiceTypeID, c.IsManaged, c.IsThirdParty,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}
	return r.writeAssociations(ctx, c)
}

// GetByID retrieves a component with its associations
func (r *ComponentRepository) GetByID(ctx context.Context, id int64) (*models.Component, error) {
	c := &models.Component{}
	found, err := sqlxGet(ctx, r.db, c, `SELECT `+componentColumns+` FROM components WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get component: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := r.loadAssociations(ctx, []*models.Component{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves a filtered page of components ordered by name
func (r *ComponentRepository) List(ctx context.Context, filters ComponentFilters, limit, offset int) ([]*models.Component, int, error) {
	where := sq.And{}
	if filters.ServiceTypeID != nil {
		where = append(where, sq.Eq{"service_type_id": *filters.ServiceTypeID})
	}
	if filters.IsManaged != nil {
		where = append(where, sq.Eq{"is_managed": *filters.IsManaged})
	}
	if filters.TeamID != nil {
		where = append(where, sq.Expr(
			"id IN (SELECT component_id FROM component_teams WHERE team_id = ?)", *filters.TeamID))
	}

	count := psql.Select("COUNT(*)").From("components")
	list := psql.Select(componentColumns).From("components")
	if len(where) > 0 {
		count = count.Where(where)
		list = list.Where(where)
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build component count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count components: %w", err)
	}

	query, args, err := list.OrderBy("name", "id").Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build component query: %w", err)
	}
	components := make([]*models.Component, 0)
	if err := sqlxSelect(ctx, r.db, &components, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list components: %w", err)
	}
	if err := r.loadAssociations(ctx, components); err != nil {
		return nil, 0, err
	}
	return components, total, nil
}

// Update writes a component and replaces its associations. Reports false when
// it does not exist.
func (r *ComponentRepository) Update(ctx context.Context, c *models.Component) (bool, error) {
	query := `
		UPDATE components
		SET name = $2, description = $3, repository_url = $4, service_type_id = $5,
		    is_managed = $6, is_third_party = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	found, err := sqlxGet(ctx, r.db, c, query,
		c.ID, c.Name, c.Description, c.RepositoryURL, c.ServiceTypeID, c.IsManaged, c.IsThirdParty)
	if err != nil {
		return false, fmt.Errorf("failed to update component: %w", err)
	}
	if !found {
		return false, nil
	}
	return true, r.writeAssociations(ctx, c)
}

// Delete removes a component and reports whether it existed. Association rows cascade.
func (r *ComponentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM components WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete component: %w", err)
	}
	return deleted, nil
}

func (r *ComponentRepository) writeAssociations(ctx context.Context, c *models.Component) error {
	sets := []struct {
		assoc association
		ids   *[]int64
	}{
		{componentTeams, &c.TeamIDs},
		{componentTags, &c.TagIDs},
		{componentContainerImages, &c.ContainerImageIDs},
		{componentVersions, &c.VersionIDs},
	}
	for _, s := range sets {
		if err := s.assoc.replace(ctx, r.db, c.ID, *s.ids); err != nil {
			return err
		}
		if *s.ids == nil {
			*s.ids = []int64{}
		}
	}
	return nil
}

func (r *ComponentRepository) loadAssociations(ctx context.Context, components []*models.Component) error {
	ids := make([]int64, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.ID)
	}

	teams, err := componentTeams.membersOf(ctx, r.db, ids)
	if err != nil {
		return err
	}
	tags, err := componentTags.membersOf(ctx, r.db, ids)
	if err != nil {
		return err
	}
	images, err := componentContainerImages.membersOf(ctx, r.db, ids)
	if err != nil {
		return err
	}
	versions, err := componentVersions.membersOf(ctx, r.db, ids)
	if err != nil {
		return err
	}

	for _, c := range components {
		c.TeamIDs = teams[c.ID]
		c.TagIDs = tags[c.ID]
		c.ContainerImageIDs = images[c.ID]
		c.VersionIDs = versions[c.ID]
	}
	return nil
}
