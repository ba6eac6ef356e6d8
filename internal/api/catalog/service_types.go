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

// ServiceTypeHandlers handles /service-types
type ServiceTypeHandlers struct{}

// NewServiceTypeHandlers creates a new ServiceTypeHandlers instance
func NewServiceTypeHandlers() *ServiceTypeHandlers {
	return &ServiceTypeHandlers{}
}

// ServiceTypeRequest is the create and update body
type ServiceTypeRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsManaged   bool   `json:"is_managed"`
}

func (r ServiceTypeRequest) model() (*models.ServiceType, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 255 {
		return nil, false
	}
	return &models.ServiceType{Name: name, Description: r.Description, IsManaged: r.IsManaged}, true
}

// List handles GET /service-types
func (h *ServiceTypeHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		types, total, err := repositories.NewServiceTypeRepository(sess).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("service_types", types, page, total))
	}
}

// Get handles GET /service-types/:id
func (h *ServiceTypeHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		st, err := repositories.NewServiceTypeRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if st == nil {
			apierr.NotFound(c, "Service type")
			return
		}
		c.JSON(http.StatusOK, gin.H{"service_type": st})
	}
}

// Create handles POST /service-types
func (h *ServiceTypeHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ServiceTypeRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		st, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		if err := repositories.NewServiceTypeRepository(sess).Create(c.Request.Context(), st); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"service_type": st})
	}
}

// Update handles PUT /service-types/:id
func (h *ServiceTypeHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req ServiceTypeRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		st, valid := req.model()
		if !valid {
			apierr.BadRequest(c, "name must be 1 to 255 characters")
			return
		}
		st.ID = id
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		found, err := repositories.NewServiceTypeRepository(sess).Update(c.Request.Context(), st)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Service type")
			return
		}
		c.JSON(http.StatusOK, gin.H{"service_type": st})
	}
}

// Delete handles DELETE /service-types/:id
func (h *ServiceTypeHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewServiceTypeRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Service type")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
