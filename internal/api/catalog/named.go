// Package catalog implements the tenant-scoped catalog endpoints. Every
// handler works on the session bound to the request by TenantScopeMiddleware,
// so queries never name a schema.
package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
)

// NamedEntryHandlers serves one of the name-only collections: tags, teams,
// cloud providers, registry providers.
type NamedEntryHandlers struct {
	table    repositories.CatalogTable
	resource string // display name used in error messages
	listKey  string
	itemKey  string
}

// NewNamedEntryHandlers creates handlers for table. resource is the singular
// display name ("Tag"); listKey and itemKey name the JSON envelope fields.
func NewNamedEntryHandlers(table repositories.CatalogTable, resource, listKey, itemKey string) *NamedEntryHandlers {
	return &NamedEntryHandlers{table: table, resource: resource, listKey: listKey, itemKey: itemKey}
}

// NameRequest is the create and update body of a named entry
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (r NameRequest) trimmed() (string, bool) {
	name := strings.TrimSpace(r.Name)
	return name, name != "" && len(name) <= 255
}

// List handles GET /<collection>
func (h *NamedEntryHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		entries, total, err := repositories.NewNamedEntryRepository(sess, h.table).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody(h.listKey, entries, page, total))
	}
}

// Get handles GET /<collection>/:id
func (h *NamedEntryHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		entry, err := repositories.NewNamedEntryRepository(sess, h.table).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if entry == nil {
			apierr.NotFound(c, h.resource)
			return
		}
		c.JSON(http.StatusOK, gin.H{h.itemKey: entry})
	}
}

// Create handles POST /<collection>
func (h *NamedEntryHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NameRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		name, valid := req.trimmed()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		entry, err := repositories.NewNamedEntryRepository(sess, h.table).Create(c.Request.Context(), name)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{h.itemKey: entry})
	}
}

// Update handles PUT /<collection>/:id
func (h *NamedEntryHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req NameRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		name, valid := req.trimmed()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		entry, err := repositories.NewNamedEntryRepository(sess, h.table).Update(c.Request.Context(), id, name)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if entry == nil {
			apierr.NotFound(c, h.resource)
			return
		}
		c.JSON(http.StatusOK, gin.H{h.itemKey: entry})
	}
}

// Delete handles DELETE /<collection>/:id
func (h *NamedEntryHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewNamedEntryRepository(sess, h.table).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, h.resource)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
