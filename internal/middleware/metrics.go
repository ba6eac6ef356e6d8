package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

// noRoute labels requests that matched no route so unknown paths do not
// inflate label cardinality.
const noRoute = "<no-route>"

// MetricsMiddleware records catalog_http_requests_total and
// catalog_http_request_duration_seconds for every request.
//
// The path label is c.FullPath(), the matched route template such as
// /api/v1/tags/:id, never the raw URL. Register it after gin.Recovery() and
// RequestIDMiddleware so the final status written by error handlers is seen.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// AccessLogMiddleware writes one structured log line per request. Server
// errors log at ERROR, client errors at WARN, everything else at INFO.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", routeLabel(c)),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", GetRequestID(c)),
		}
		if tenantID := GetTenantID(c); tenantID > 0 {
			attrs = append(attrs, slog.Int64("tenant_id", tenantID))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return noRoute
}
