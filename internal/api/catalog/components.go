package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
)

// ComponentHandlers handles /components. A component and its team, tag,
// container image and version links are written in one transaction.
type ComponentHandlers struct{}

// NewComponentHandlers creates a new ComponentHandlers instance
func NewComponentHandlers() *ComponentHandlers {
	return &ComponentHandlers{}
}

// ComponentRequest is the create and update body. Each *_ids list replaces
// the current links; an omitted list clears them.
type ComponentRequest struct {
	Name              string  `json:"name" binding:"required"`
	Description       *string `json:"description"`
	RepositoryURL     *string `json:"repository_url" binding:"omitempty,url"`
	ServiceTypeID     *int64  `json:"service_type_id"`
	IsManaged         bool    `json:"is_managed"`
	IsThirdParty      *bool   `json:"is_third_party"`
	TeamIDs           []int64 `json:"team_ids"`
	TagIDs            []int64 `json:"tag_ids"`
	ContainerImageIDs []int64 `json:"container_image_ids"`
	VersionIDs        []int64 `json:"version_ids"`
}

func (r ComponentRequest) model() (*models.Component, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 255 {
		return nil, false
	}
	return &models.Component{
		Name:              name,
		Description:       r.Description,
		RepositoryURL:     r.RepositoryURL,
		ServiceTypeID:     r.ServiceTypeID,
		IsManaged:         r.IsManaged,
		IsThirdParty:      r.IsThirdParty,
		TeamIDs:           r.TeamIDs,
		TagIDs:            r.TagIDs,
		ContainerImageIDs: r.ContainerImageIDs,
		VersionIDs:        r.VersionIDs,
	}, true
}

// @Summary      List components
// @Tags         Components
// @Security     Bearer
// @Produce      json
// @Param        service_type_id  query  int   false  "Filter by service type"
// @Param        team_id          query  int   false  "Filter by owning team"
// @Param        is_managed       query  bool  false  "Filter by managed flag"
// @Router       /api/v1/components [get]
// List handles GET /components
func (h *ComponentHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters repositories.ComponentFilters
		var ok bool
		if filters.ServiceTypeID, ok = httpx.QueryID(c, "service_type_id"); !ok {
			return
		}
		if filters.TeamID, ok = httpx.QueryID(c, "team_id"); !ok {
			return
		}
		if raw := c.Query("is_managed"); raw != "" {
			managed, err := strconv.ParseBool(raw)
			if err != nil {
				apierr.BadRequest(c, "Invalid is_managed")
				return
			}
			filters.IsManaged = &managed
		}

		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		components, total, err := repositories.NewComponentRepository(sess).List(c.Request.Context(), filters, page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("components", components, page, total))
	}
}

// Get handles GET /components/:id
func (h *ComponentHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		comp, err := repositories.NewComponentRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if comp == nil {
			apierr.NotFound(c, "Component")
			return
		}
		c.JSON(http.StatusOK, gin.H{"component": comp})
	}
}

// Create handles POST /components
func (h *ComponentHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ComponentRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		comp, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		err := sess.InTx(c.Request.Context(), func(tx *sqlx.Tx) error {
			return repositories.NewComponentRepository(tx).Create(c.Request.Context(), comp)
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"component": comp})
	}
}

// Update handles PUT /components/:id
func (h *ComponentHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req ComponentRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		comp, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		comp.ID = id
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		var found bool
		err := sess.InTx(c.Request.Context(), func(tx *sqlx.Tx) error {
			var err error
			found, err = repositories.NewComponentRepository(tx).Update(c.Request.Context(), comp)
			return err
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Component")
			return
		}
		c.JSON(http.StatusOK, gin.H{"component": comp})
	}
}

// Delete handles DELETE /components/:id
func (h *ComponentHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewComponentRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Component")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
