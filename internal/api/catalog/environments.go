package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
)

// EnvironmentHandlers handles /environments
type EnvironmentHandlers struct{}

// NewEnvironmentHandlers creates a new EnvironmentHandlers instance
func NewEnvironmentHandlers() *EnvironmentHandlers {
	return &EnvironmentHandlers{}
}

// EnvironmentRequest is the create and update body
type EnvironmentRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	VersionID   int64   `json:"version_id" binding:"required,gt=0"`
}

func (r EnvironmentRequest) model() (*models.Environment, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 255 {
		return nil, false
	}
	return &models.Environment{Name: name, Description: r.Description, VersionID: r.VersionID}, true
}

// respondEnvironmentWrite maps the write errors specific to environments
func respondEnvironmentWrite(c *gin.Context, err error) {
	switch {
	case repositories.IsUniqueViolation(err):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Environment name already used for this version"})
	case repositories.IsForeignKeyViolation(err):
		apierr.BadRequest(c, "version_id does not exist")
	default:
		apierr.Respond(c, err)
	}
}

// @Summary      List environments
// @Tags         Environments
// @Security     Bearer
// @Produce      json
// @Param        version_id  query  int  false  "Filter by version"
// @Router       /api/v1/environments [get]
// List handles GET /environments
func (h *EnvironmentHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		versionID, ok := httpx.QueryID(c, "version_id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		envs, total, err := repositories.NewEnvironmentRepository(sess).List(c.Request.Context(),
			repositories.EnvironmentFilters{VersionID: versionID}, page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("environments", envs, page, total))
	}
}

// Get handles GET /environments/:id
func (h *EnvironmentHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		env, err := repositories.NewEnvironmentRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if env == nil {
			apierr.NotFound(c, "Environment")
			return
		}
		c.JSON(http.StatusOK, gin.H{"environment": env})
	}
}

// Create handles POST /environments
func (h *EnvironmentHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnvironmentRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		env, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		if err := repositories.NewEnvironmentRepository(sess).Create(c.Request.Context(), env); err != nil {
			respondEnvironmentWrite(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"environment": env})
	}
}

// Update handles PUT /environments/:id
func (h *EnvironmentHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req EnvironmentRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		env, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		env.ID = id
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		found, err := repositories.NewEnvironmentRepository(sess).Update(c.Request.Context(), env)
		if err != nil {
			respondEnvironmentWrite(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Environment")
			return
		}
		c.JSON(http.StatusOK, gin.H{"environment": env})
	}
}

// Delete handles DELETE /environments/:id
func (h *EnvironmentHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewEnvironmentRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Environment")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
