// Package apierr maps domain errors onto HTTP responses. Every handler reports
// failures through Respond so the status codes and bodies stay uniform.
package apierr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

const internalMessage = "Internal server error"

// Status returns the HTTP status and client-facing message for err.
// Unrecognised errors are 500 with a generic message. A critical consistency
// fault is a 500 whatever its cause.
func Status(err error) (int, string) {
	var validation *tenancy.ValidationError
	switch {
	case errors.Is(err, tenancy.ErrCriticalConsistencyFault):
		return http.StatusInternalServerError, internalMessage
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, tenancy.ErrInvalidTenantIdentifier):
		return http.StatusBadRequest, "Invalid tenant identifier"
	case errors.Is(err, tenancy.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect email or password"
	case errors.Is(err, tenancy.ErrInactiveAccount):
		return http.StatusForbidden, "Inactive account"
	case errors.Is(err, tenancy.ErrTenantSchemaNotFound), errors.Is(err, tenancy.ErrTenantNotFound):
		return http.StatusNotFound, "Tenant not found"
	case errors.Is(err, tenancy.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, tenancy.ErrEmailAlreadyRegistered):
		return http.StatusConflict, "Email already registered"
	case errors.Is(err, tenancy.ErrTenantNotEmpty):
		return http.StatusConflict, "Company still has users"
	case errors.Is(err, tenancy.ErrTenantProvisioningFailed):
		return http.StatusInternalServerError, "Failed to provision company"
	case repositories.IsUniqueViolation(err):
		return http.StatusConflict, "Resource already exists"
	case repositories.IsForeignKeyViolation(err):
		return http.StatusBadRequest, "Referenced resource does not exist or is still in use"
	default:
		return http.StatusInternalServerError, internalMessage
	}
}

// Respond writes the response for err and aborts the chain. Server errors are
// logged with the request path; the client only sees a generic message.
func Respond(c *gin.Context, err error) {
	status, msg := Status(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// BadRequest aborts with 400 and msg.
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// NotFound aborts with 404 "<resource> not found".
func NotFound(c *gin.Context, resource string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": resource + " not found"})
}
