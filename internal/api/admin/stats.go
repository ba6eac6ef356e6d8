// stats.go implements the dashboard statistics endpoint for the caller's company.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct{}

// NewStatsHandler creates a new stats handler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Users           int64              `json:"users"`
	Teams           int64              `json:"teams"`
	Tags            int64              `json:"tags"`
	Components      ComponentStats     `json:"components"`
	Registries      RegistryStats      `json:"registries"`
	ContainerImages int64              `json:"container_images"`
	Versions        int64              `json:"versions"`
	Environments    int64              `json:"environments"`
	ByServiceType   []ServiceTypeCount `json:"by_service_type"`
}

// ComponentStats breaks components down by ownership
type ComponentStats struct {
	Total      int64 `json:"total"`
	Managed    int64 `json:"managed"`
	ThirdParty int64 `json:"third_party"`
}

// RegistryStats breaks registries down by visibility
type RegistryStats struct {
	Total       int64 `json:"total"`
	Private     int64 `json:"private"`
	Credentials int64 `json:"credentials"`
}

// ServiceTypeCount is the number of components of one service type
type ServiceTypeCount struct {
	ServiceType string `json:"service_type"`
	Count       int64  `json:"count"`
}

// @Summary      Get dashboard statistics
// @Description  Returns catalog counts for the caller's company: users, teams, tags, components, registries, images, versions, and environments.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/stats/dashboard [get]
// GetDashboardStats returns dashboard statistics using a single round-trip for the counts.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	sess, ok := httpx.Session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS user_count,
			(SELECT COUNT(*) FROM teams) AS team_count,
			(SELECT COUNT(*) FROM tags) AS tag_count,
			(SELECT COUNT(*) FROM components) AS component_count,
			(SELECT COUNT(*) FROM components WHERE is_managed) AS managed_count,
			(SELECT COUNT(*) FROM components WHERE is_third_party) AS third_party_count,
			(SELECT COUNT(*) FROM registries) AS registry_count,
			(SELECT COUNT(*) FROM registries WHERE is_private) AS private_registry_count,
			(SELECT COUNT(*) FROM registry_credentials) AS credential_count,
			(SELECT COUNT(*) FROM container_images) AS image_count,
			(SELECT COUNT(*) FROM versions) AS version_count,
			(SELECT COUNT(*) FROM environments) AS environment_count
	`

	var stats DashboardStats
	err := sess.QueryRowxContext(ctx, query).Scan(
		&stats.Users,
		&stats.Teams,
		&stats.Tags,
		&stats.Components.Total,
		&stats.Components.Managed,
		&stats.Components.ThirdParty,
		&stats.Registries.Total,
		&stats.Registries.Private,
		&stats.Registries.Credentials,
		&stats.ContainerImages,
		&stats.Versions,
		&stats.Environments,
	)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	rows, err := sess.QueryxContext(ctx, `
		SELECT st.name, COUNT(c.id)
		FROM service_types st
		LEFT JOIN components c ON c.service_type_id = st.id
		GROUP BY st.name
		ORDER BY st.name
	`)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	defer rows.Close()

	stats.ByServiceType = make([]ServiceTypeCount, 0)
	for rows.Next() {
		var sc ServiceTypeCount
		if err := rows.Scan(&sc.ServiceType, &sc.Count); err != nil {
			apierr.Respond(c, err)
			return
		}
		stats.ByServiceType = append(stats.ByServiceType, sc)
	}
	if err := rows.Err(); err != nil {
		apierr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
