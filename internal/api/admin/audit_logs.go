// audit_logs.go implements read access to the audit trail. Callers only ever
// see entries recorded for their own company.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
)

// AuditLogHandlers handles audit log endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance. db must reach
// the global schema.
func NewAuditLogHandlers(db repositories.Querier) *AuditLogHandlers {
	return &AuditLogHandlers{auditRepo: repositories.NewAuditRepository(db)}
}

// @Summary      List audit logs
// @Description  List audit entries of the caller's company, newest first. Requires audit:read scope.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        user_email     query  string  false  "Filter by actor email"
// @Param        action         query  string  false  "Filter by action, e.g. POST /api/v1/tags"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        start_date     query  string  false  "RFC 3339 lower bound"
// @Param        end_date       query  string  false  "RFC 3339 upper bound"
// @Router       /api/v1/audit-logs [get]
// ListAuditLogsHandler lists audit logs
// GET /api/v1/audit-logs
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := middleware.GetTenantID(c)
		filters := repositories.AuditFilters{CompanyID: &companyID}

		for param, dst := range map[string]**string{
			"user_email":    &filters.UserEmail,
			"action":        &filters.Action,
			"resource_type": &filters.ResourceType,
		} {
			if v := c.Query(param); v != "" {
				*dst = &v
			}
		}
		for param, dst := range map[string]**time.Time{
			"start_date": &filters.StartDate,
			"end_date":   &filters.EndDate,
		} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				apierr.BadRequest(c, "Invalid "+param+": expected RFC 3339 timestamp")
				return
			}
			*dst = &t
		}

		page := httpx.Pagination(c)
		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("audit_logs", logs, page, total))
	}
}

// GetAuditLogHandler returns one audit entry of the caller's company
// GET /api/v1/audit-logs/:id
func (h *AuditLogHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		log, err := h.auditRepo.GetAuditLog(c.Request.Context(), middleware.GetTenantID(c), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if log == nil {
			apierr.NotFound(c, "Audit log")
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_log": log})
	}
}
