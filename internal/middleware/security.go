// security.go provides Gin middleware that injects protective HTTP response headers.
// The catalog serves JSON only, so the policy forbids rendering and framing outright.
package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// HSTSMaxAge is the max-age in seconds; 0 disables Strict-Transport-Security
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// HSTSOnlyOverTLS sends HSTS only on requests that arrived over HTTPS
	// (directly or per X-Forwarded-Proto)
	HSTSOnlyOverTLS       bool
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	// NoStore adds Cache-Control: no-store so tenant data is never cached by proxies
	NoStore bool
}

// APISecurityHeadersConfig returns security headers suitable for the JSON API
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		HSTSOnlyOverTLS:       true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" && (!config.HSTSOnlyOverTLS || isHTTPS(c)) {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.FrameOptions != "" {
			c.Header("X-Frame-Options", config.FrameOptions)
		}
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.NoStore {
			c.Header("Cache-Control", "no-store")
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cross-Origin-Resource-Policy", "same-origin")

		c.Next()
	}
}

func isHTTPS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
