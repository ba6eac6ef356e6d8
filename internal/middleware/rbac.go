// Package middleware (rbac.go) implements scope-based authorization middleware.
//
// Scopes are derived from the role carried in the token at request time, so
// the role-to-scope mapping in auth.ScopesForRole can change without reissuing
// tokens.

package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/auth"
)

// userScopes returns the caller's scopes or aborts with 403.
func userScopes(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get(ScopesKey)
	if !exists {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		return nil, false
	}

	scopes, ok := scopesVal.([]string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Invalid scopes format",
		})
		return nil, false
	}
	return scopes, true
}

// RequireScope checks if authenticated user has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := userScopes(c)
		if !ok {
			return
		}

		if !auth.HasScope(scopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyScope checks if authenticated user has at least one of the required scopes
func RequireAnyScope(required ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := userScopes(c)
		if !ok {
			return
		}

		if !auth.HasAnyScope(scopes, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}

		c.Next()
	}
}

// RequireAllScopes checks if authenticated user has all of the required scopes
func RequireAllScopes(required ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := userScopes(c)
		if !ok {
			return
		}

		if !auth.HasAllScopes(scopes, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing one or more required scopes",
			})
			return
		}

		c.Next()
	}
}

// RequireSelfOrScope lets a user act on their own record (path parameter
// param equals their user ID) and otherwise requires scope.
func RequireSelfOrScope(param string, scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := strconv.ParseInt(c.Param(param), 10, 64); err == nil {
			if uid := c.GetInt64(UserIDKey); uid != 0 && uid == id {
				c.Next()
				return
			}
		}
		RequireScope(scope)(c)
	}
}

// IsSelf reports whether the path parameter param names the caller
func IsSelf(c *gin.Context, param string) bool {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	return err == nil && id != 0 && id == c.GetInt64(UserIDKey)
}
