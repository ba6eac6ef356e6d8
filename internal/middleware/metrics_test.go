package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

// newMetricsRouter builds a minimal Gin engine with MetricsMiddleware and one test route.
func newMetricsRouter(handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/test/:id", handler)
	return r
}

func TestMetricsMiddleware_RecordsRequests(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"ok", http.StatusOK},
		{"server error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := prometheus.Labels{"method": "GET", "path": "/test/:id", "status": strconv.Itoa(tt.status)}
			before := telemetry.CounterValue(telemetry.HTTPRequestsTotal, labels)
			beforeObs := telemetry.HistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/test/:id"})

			r := newMetricsRouter(func(c *gin.Context) { c.Status(tt.status) })
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test/42", nil))

			if got := telemetry.CounterValue(telemetry.HTTPRequestsTotal, labels) - before; got != 1 {
				t.Errorf("requests counter delta = %v, want 1", got)
			}
			if got := telemetry.HistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/test/:id"}) - beforeObs; got != 1 {
				t.Errorf("duration observations delta = %d, want 1", got)
			}
		})
	}
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test/777", nil))

	if got := telemetry.CounterValue(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/test/777"}); got != 0 {
		t.Errorf("raw URL used as path label (%v series), want route template", got)
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())

	labels := prometheus.Labels{"path": noRoute, "status": "404"}
	before := telemetry.CounterValue(telemetry.HTTPRequestsTotal, labels)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if got := telemetry.CounterValue(telemetry.HTTPRequestsTotal, labels) - before; got != 1 {
		t.Errorf("<no-route> counter delta = %v, want 1", got)
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := gin.New()
	r.Use(RequestIDMiddleware(), func(c *gin.Context) {
		c.Set(TenantIDKey, int64(7))
		c.Next()
	}, AccessLogMiddleware())
	r.GET("/api/v1/tags/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tags/3", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"level":      "WARN",
		"msg":        "http request",
		"path":       "/api/v1/tags/3",
		"route":      "/api/v1/tags/:id",
		"status":     float64(404),
		"request_id": "req-abc",
		"tenant_id":  float64(7),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
}
