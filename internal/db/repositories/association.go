package repositories

import (
	"context"
	"fmt"
	"slices"

	"github.com/lib/pq"
)

// association is a many-to-many link table between an owner and its members.
type association struct {
	table     string
	ownerCol  string
	memberCol string
}

var (
	componentTeams           = association{"component_teams", "component_id", "team_id"}
	componentTags            = association{"component_tags", "component_id", "tag_id"}
	componentContainerImages = association{"component_container_images", "component_id", "container_image_id"}
	componentVersions        = association{"component_versions", "component_id", "version_id"}
	versionContainerImages   = association{"version_container_images", "version_id", "container_image_id"}
)

// replace makes memberIDs the complete member set of ownerID. Run it inside a
// transaction; a missing member surfaces as a foreign key violation.
func (a association) replace(ctx context.Context, q Querier, ownerID int64, memberIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+a.table+` WHERE `+a.ownerCol+` = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", a.table, err)
	}

	ids := slices.Clone(memberIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}

	insert := psql.Insert(a.table).Columns(a.ownerCol, a.memberCol)
	for _, id := range ids {
		insert = insert.Values(ownerID, id)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s insert: %w", a.table, err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to link %s: %w", a.table, err)
	}
	return nil
}

// members returns the member IDs of ownerID in ascending order.
func (a association) members(ctx context.Context, q Querier, ownerID int64) ([]int64, error) {
	ids := make([]int64, 0)
	query := `SELECT ` + a.memberCol + ` FROM ` + a.table + ` WHERE ` + a.ownerCol + ` = $1 ORDER BY ` + a.memberCol
	if err := sqlxSelect(ctx, q, &ids, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.table, err)
	}
	return ids, nil
}

// membersOf returns the member IDs of every owner in ownerIDs, keyed by owner.
// Owners without members map to an empty slice.
func (a association) membersOf(ctx context.Context, q Querier, ownerIDs []int64) (map[int64][]int64, error) {
	result := make(map[int64][]int64, len(ownerIDs))
	for _, id := range ownerIDs {
		result[id] = []int64{}
	}
	if len(ownerIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + a.ownerCol + `, ` + a.memberCol + ` FROM ` + a.table +
		` WHERE ` + a.ownerCol + ` = ANY($1) ORDER BY ` + a.ownerCol + `, ` + a.memberCol
	rows, err := q.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, member int64
		if err := rows.Scan(&owner, &member); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", a.table, err)
		}
		result[owner] = append(result[owner], member)
	}
	return result, rows.Err()
}
