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

// RegistryHandlers handles /registries
type RegistryHandlers struct{}

// NewRegistryHandlers creates a new RegistryHandlers instance
func NewRegistryHandlers() *RegistryHandlers {
	return &RegistryHandlers{}
}

// RegistryRequest is the create and update body
type RegistryRequest struct {
	Name                  string `json:"name" binding:"required"`
	URL                   string `json:"url" binding:"required,url"`
	IsPrivate             bool   `json:"is_private"`
	RegistryProviderID    *int64 `json:"registry_provider_id"`
	RegistryCredentialsID *int64 `json:"registry_credentials_id"`
}

func (r RegistryRequest) model() (*models.Registry, string) {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 255 {
		return nil, "name must be 1 to 255 characters"
	}
	if r.IsPrivate && r.RegistryCredentialsID == nil {
		return nil, "private registries need registry_credentials_id"
	}
	return &models.Registry{
		Name:                  name,
		URL:                   strings.TrimRight(r.URL, "/"),
		IsPrivate:             r.IsPrivate,
		RegistryProviderID:    r.RegistryProviderID,
		RegistryCredentialsID: r.RegistryCredentialsID,
	}, ""
}

// List handles GET /registries
func (h *RegistryHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		regs, total, err := repositories.NewRegistryRepository(sess).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("registries", regs, page, total))
	}
}

// Get handles GET /registries/:id
func (h *RegistryHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		reg, err := repositories.NewRegistryRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if reg == nil {
			apierr.NotFound(c, "Registry")
			return
		}
		c.JSON(http.StatusOK, gin.H{"registry": reg})
	}
}

// Create handles POST /registries
func (h *RegistryHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegistryRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		reg, problem := req.model()
		if problem != "" {
			apierr.BadRequest(c, problem)
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		if err := repositories.NewRegistryRepository(sess).Create(c.Request.Context(), reg); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"registry": reg})
	}
}

// Update handles PUT /registries/:id
func (h *RegistryHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req RegistryRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		reg, problem := req.model()
		if problem != "" {
			apierr.BadRequest(c, problem)
			return
		}
		reg.ID = id
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		found, err := repositories.NewRegistryRepository(sess).Update(c.Request.Context(), reg)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Registry")
			return
		}
		c.JSON(http.StatusOK, gin.H{"registry": reg})
	}
}

// Delete handles DELETE /registries/:id
func (h *RegistryHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewRegistryRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Registry")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
