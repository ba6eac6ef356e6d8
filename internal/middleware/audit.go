package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/config"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const (
	apiPrefix          = "/api/v1/"
	auditRecordTimeout = 5 * time.Second
)

// AuditRecorder persists one audit record. Satisfied by *audit.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog, requestID string) error
}

// AuditMiddleware records each request after the handler chain has run.
// Without a config only successful writes are recorded; OPTIONS is never
// recorded.
func AuditMiddleware(recorder AuditRecorder, cfg *config.AuditConfig) gin.HandlerFunc {
	logReads := cfg != nil && cfg.LogReadOperations
	logFailed := cfg != nil && cfg.LogFailedRequests

	return func(c *gin.Context) {
		c.Next()

		method := c.Request.Method
		if method == http.MethodOptions || method == http.MethodHead {
			return
		}
		if method == http.MethodGet && !logReads {
			return
		}
		status := c.Writer.Status()
		if status >= 400 && !logFailed {
			return
		}

		entry := auditEntry(c, status)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditRecordTimeout)
		defer cancel()
		if err := recorder.Record(ctx, entry, GetRequestID(c)); err != nil {
			slog.Error("failed to record audit log", "action", entry.Action, "error", err)
		}
	}
}

func auditEntry(c *gin.Context, status int) *models.AuditLog {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	ip := c.ClientIP()

	entry := &models.AuditLog{
		Action:     c.Request.Method + " " + route,
		StatusCode: status,
		IPAddress:  &ip,
		CreatedAt:  time.Now().UTC(),
	}
	if tenantID := GetTenantID(c); tenantID > 0 {
		entry.CompanyID = &tenantID
	}
	if email := c.GetString(EmailKey); email != "" {
		entry.UserEmail = &email
	}
	if resourceType := resourceTypeFromPath(c.Request.URL.Path); resourceType != "" {
		entry.ResourceType = &resourceType
	}
	if id := c.Param("id"); id != "" {
		entry.ResourceID = &id
	}

	metadata := map[string]interface{}{}
	if method := c.GetString(AuthMethodKey); method != "" {
		metadata["auth_method"] = method
	}
	if requestID := GetRequestID(c); requestID != "" {
		metadata["request_id"] = requestID
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}
	return entry
}

// resourceTypeFromPath returns the collection segment after /api/v1/,
// e.g. "registry-credentials" for /api/v1/registry-credentials/4/verify.
func resourceTypeFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, apiPrefix)
	if !ok {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	return segment
}
