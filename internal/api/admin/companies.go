// companies.go implements handlers for companies, the tenants of the catalog.
// Creating a company provisions its schema; deleting one drops it.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// Companies is the company lifecycle surface. Satisfied by *tenancy.Lifecycle.
type Companies interface {
	Create(ctx context.Context, in tenancy.CreateCompanyInput) (*models.Company, error)
	Get(ctx context.Context, tenantID int64) (*models.Company, error)
	List(ctx context.Context, page, perPage int) ([]*models.Company, int, error)
	Rename(ctx context.Context, tenantID int64, name string) (*models.Company, error)
	Delete(ctx context.Context, tenantID int64) error
}

// CompanyHandlers handles company management endpoints
type CompanyHandlers struct {
	companies Companies
	seed      bool
}

// NewCompanyHandlers creates a new CompanyHandlers instance. seed controls
// whether new companies receive the reference catalog.
func NewCompanyHandlers(companies Companies, seed bool) *CompanyHandlers {
	return &CompanyHandlers{companies: companies, seed: seed}
}

// CompanyRequest is the create and rename body
type CompanyRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      List companies
// @Tags         Companies
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Router       /api/v1/companies [get]
// ListCompaniesHandler lists companies
// GET /api/v1/companies
func (h *CompanyHandlers) ListCompaniesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := httpx.Pagination(c)
		companies, total, err := h.companies.List(c.Request.Context(), page.Page, page.PerPage)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("companies", companies, page, total))
	}
}

// GetCompanyHandler retrieves a company
// GET /api/v1/companies/:id
func (h *CompanyHandlers) GetCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		company, err := h.companies.Get(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"company": company})
	}
}

// @Summary      Create company
// @Description  Create a company and provision its schema. A provisioning failure removes the company again. Requires companies:write scope.
// @Tags         Companies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CompanyRequest  true  "Company"
// @Failure      500  {object}  map[string]interface{}  "Provisioning failed"
// @Router       /api/v1/companies [post]
// CreateCompanyHandler creates a company
// POST /api/v1/companies
func (h *CompanyHandlers) CreateCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest
		if !httpx.BindJSON(c, &req) {
			return
		}

		company, err := h.companies.Create(c.Request.Context(), tenancy.CreateCompanyInput{
			Name:              req.Name,
			SeedReferenceData: h.seed,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"company": company})
	}
}

// UpdateCompanyHandler renames a company
// PUT /api/v1/companies/:id
func (h *CompanyHandlers) UpdateCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req CompanyRequest
		if !httpx.BindJSON(c, &req) {
			return
		}

		company, err := h.companies.Rename(c.Request.Context(), id, req.Name)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"company": company})
	}
}

// DeleteCompanyHandler deletes a company that has no users left
// DELETE /api/v1/companies/:id
func (h *CompanyHandlers) DeleteCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		if err := h.companies.Delete(c.Request.Context(), id); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Company deleted successfully"})
	}
}
