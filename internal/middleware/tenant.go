// tenant.go binds each authenticated request to its tenant's schema. The
// session is opened before the handlers run, since the caller is loaded from
// it, and released after the handler chain returns. The scope also rides on the
// request context so tenant work done through the router reuses the session.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// Context keys set by TenantScopeMiddleware.
const (
	ScopeKey = "tenant_scope"
	UserKey  = "user"
)

// TenantScopeMiddleware resolves the token's tenant to a session, loads the
// caller from it, and rejects the request when the tenant schema is gone (404),
// the user no longer exists (401), or the user is inactive (403). Must run
// after AuthMiddleware.
func TenantScopeMiddleware(router *tenancy.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			unauthorized(c, "Not authenticated")
			return
		}

		scope := router.Scope(claims.TenantID)
		defer func() {
			if err := scope.Release(); err != nil {
				slog.Warn("failed to release tenant session", "tenant_id", claims.TenantID, "error", err)
			}
		}()

		sess, err := scope.Session(c.Request.Context())
		if err != nil {
			switch {
			case errors.Is(err, tenancy.ErrTenantSchemaNotFound):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			case errors.Is(err, tenancy.ErrInvalidTenantIdentifier):
				unauthorized(c, "Could not validate credentials")
			default:
				slog.Error("failed to open tenant session", "tenant_id", claims.TenantID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		user, err := repositories.NewUserRepository(sess).GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			slog.Error("failed to load user", "tenant_id", claims.TenantID, "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil || user.Email != claims.Email {
			unauthorized(c, "User not found")
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Inactive account"})
			return
		}

		c.Set(ScopeKey, scope)
		c.Set(UserKey, user)
		c.Request = c.Request.WithContext(tenancy.ContextWithScope(c.Request.Context(), scope))
		c.Next()
	}
}

// GetScope returns the request's tenant scope
func GetScope(c *gin.Context) (*tenancy.Scope, bool) {
	v, ok := c.Get(ScopeKey)
	if !ok {
		return nil, false
	}
	scope, ok := v.(*tenancy.Scope)
	return scope, ok && scope != nil
}

// GetUser returns the caller loaded by TenantScopeMiddleware
func GetUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
