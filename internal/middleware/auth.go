// Package middleware provides Gin HTTP middleware for authentication, tenant
// routing, authorization, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → TenantScope → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth decodes the bearer token; TenantScope binds the request to the tenant
// schema named by the token and loads the caller. RBAC reads the scopes derived
// from the caller's role.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey     = "claims"
	UserIDKey     = "user_id"
	EmailKey      = "email"
	TenantIDKey   = "tenant_id"
	RoleKey       = "role"
	ScopesKey     = "scopes"
	AuthMethodKey = "auth_method"
)

// TokenDecoder validates a bearer token. Satisfied by *auth.TokenCodec.
type TokenDecoder interface {
	Decode(token string) (*auth.Claims, error)
}

// AuthMiddleware requires a valid bearer token and stores its claims and the
// scopes of the token's role in the context. The token alone is trusted here;
// TenantScopeMiddleware checks that the tenant and the user still exist.
func AuthMiddleware(decoder TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if msg != "" {
			unauthorized(c, msg)
			return
		}

		claims, err := decoder.Decode(token)
		if err != nil {
			unauthorized(c, "Could not validate credentials")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Set(TenantIDKey, claims.TenantID)
		c.Set(RoleKey, claims.Role)
		c.Set(ScopesKey, auth.ScopesForRole(claims.Role))
		c.Set(AuthMethodKey, "jwt")

		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header. msg is non-empty
// when the header is unusable.
func bearerToken(header string) (token, msg string) {
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// GetClaims returns the claims stored by AuthMiddleware
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}

// GetTenantID returns the caller's tenant, or 0 when unauthenticated
func GetTenantID(c *gin.Context) int64 {
	return c.GetInt64(TenantIDKey)
}

// GetScopes returns the caller's scopes
func GetScopes(c *gin.Context) []string {
	return c.GetStringSlice(ScopesKey)
}
