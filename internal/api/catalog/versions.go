package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/validation"
)

// VersionHandlers handles /versions
type VersionHandlers struct{}

// NewVersionHandlers creates a new VersionHandlers instance
func NewVersionHandlers() *VersionHandlers {
	return &VersionHandlers{}
}

// VersionRequest is the create and update body
type VersionRequest struct {
	Name              string  `json:"name" binding:"required"`
	ContainerImageIDs []int64 `json:"container_image_ids"`
}

// @Summary      List versions
// @Description  Versions are ordered by semantic version, newest first.
// @Tags         Versions
// @Security     Bearer
// @Produce      json
// @Router       /api/v1/versions [get]
// List handles GET /versions
func (h *VersionHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		versions, total, err := repositories.NewVersionRepository(sess).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("versions", versions, page, total))
	}
}

// Get handles GET /versions/:id
func (h *VersionHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		v, err := repositories.NewVersionRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if v == nil {
			apierr.NotFound(c, "Version")
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": v})
	}
}

// Create handles POST /versions
func (h *VersionHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VersionRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		if err := validation.ValidateVersionName(req.Name); err != nil {
			apierr.BadRequest(c, err.Error())
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		v := &models.Version{Name: req.Name, ContainerImageIDs: req.ContainerImageIDs}
		err := sess.InTx(c.Request.Context(), func(tx *sqlx.Tx) error {
			return repositories.NewVersionRepository(tx).Create(c.Request.Context(), v)
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"version": v})
	}
}

// Update handles PUT /versions/:id. container_image_ids replaces the linked
// images.
func (h *VersionHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req VersionRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		if err := validation.ValidateVersionName(req.Name); err != nil {
			apierr.BadRequest(c, err.Error())
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		v := &models.Version{ID: id, Name: req.Name, ContainerImageIDs: req.ContainerImageIDs}
		var found bool
		err := sess.InTx(c.Request.Context(), func(tx *sqlx.Tx) error {
			var err error
			found, err = repositories.NewVersionRepository(tx).Update(c.Request.Context(), v)
			return err
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Version")
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": v})
	}
}

// Delete handles DELETE /versions/:id. Environments pinned to the version go
// with it.
func (h *VersionHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewVersionRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Version")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
