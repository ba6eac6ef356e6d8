package catalog

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
)

// ContainerImageHandlers handles /container-images
type ContainerImageHandlers struct{}

// NewContainerImageHandlers creates a new ContainerImageHandlers instance
func NewContainerImageHandlers() *ContainerImageHandlers {
	return &ContainerImageHandlers{}
}

// ContainerImageRequest is the create and update body. pushed_at defaults to
// the time of creation.
type ContainerImageRequest struct {
	Name       string     `json:"name" binding:"required"`
	Tag        string     `json:"tag" binding:"required"`
	RegistryID *int64     `json:"registry_id"`
	PushedAt   *time.Time `json:"pushed_at"`
}

func (r ContainerImageRequest) model() (*models.ContainerImage, string) {
	name := strings.TrimSpace(r.Name)
	tag := strings.TrimSpace(r.Tag)
	if name == "" || len(name) > 255 {
		return nil, "name must be 1 to 255 characters"
	}
	if tag == "" || len(tag) > 128 || strings.ContainsAny(tag, " /:") {
		return nil, "tag must be 1 to 128 characters without spaces, slashes or colons"
	}
	img := &models.ContainerImage{Name: name, Tag: tag, RegistryID: r.RegistryID}
	if r.PushedAt != nil {
		img.PushedAt = r.PushedAt.UTC()
	}
	return img, ""
}

// @Summary      List container images
// @Tags         Container Images
// @Security     Bearer
// @Produce      json
// @Param        registry_id  query  int     false  "Filter by registry"
// @Param        name         query  string  false  "Filter by image name"
// @Router       /api/v1/container-images [get]
// List handles GET /container-images
func (h *ContainerImageHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		registryID, ok := httpx.QueryID(c, "registry_id")
		if !ok {
			return
		}
		filters := repositories.ContainerImageFilters{RegistryID: registryID}
		if name := c.Query("name"); name != "" {
			filters.Name = &name
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		imgs, total, err := repositories.NewContainerImageRepository(sess).List(c.Request.Context(), filters, page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("container_images", imgs, page, total))
	}
}

// Get handles GET /container-images/:id
func (h *ContainerImageHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		img, err := repositories.NewContainerImageRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if img == nil {
			apierr.NotFound(c, "Container image")
			return
		}
		c.JSON(http.StatusOK, gin.H{"container_image": img})
	}
}

// Create handles POST /container-images
func (h *ContainerImageHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContainerImageRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		img, problem := req.model()
		if problem != "" {
			apierr.BadRequest(c, problem)
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		if err := repositories.NewContainerImageRepository(sess).Create(c.Request.Context(), img); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"container_image": img})
	}
}

// Update handles PUT /container-images/:id
func (h *ContainerImageHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req ContainerImageRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		img, problem := req.model()
		if problem != "" {
			apierr.BadRequest(c, problem)
			return
		}
		img.ID = id
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		repo := repositories.NewContainerImageRepository(sess)
		if img.PushedAt.IsZero() {
			existing, err := repo.GetByID(c.Request.Context(), id)
			if err != nil {
				apierr.Respond(c, err)
				return
			}
			if existing == nil {
				apierr.NotFound(c, "Container image")
				return
			}
			img.PushedAt = existing.PushedAt
		}
		found, err := repo.Update(c.Request.Context(), img)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Container image")
			return
		}
		c.JSON(http.StatusOK, gin.H{"container_image": img})
	}
}

// Delete handles DELETE /container-images/:id
func (h *ContainerImageHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewContainerImageRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Container image")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
