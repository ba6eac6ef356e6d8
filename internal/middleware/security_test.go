package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// applySecurityHeaders runs a GET / through SecurityHeadersMiddleware and returns
// the response recorder so callers can inspect headers.
func applySecurityHeaders(cfg SecurityHeadersConfig, header http.Header) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeadersMiddleware_APIConfig(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig(), nil)

	want := map[string]string{
		"X-Frame-Options":                   "DENY",
		"Content-Security-Policy":           "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":                   "no-referrer",
		"Cache-Control":                     "no-store",
		"X-Content-Type-Options":            "nosniff",
		"X-Permitted-Cross-Domain-Policies": "none",
		"Cross-Origin-Opener-Policy":        "same-origin",
		"Cross-Origin-Resource-Policy":      "same-origin",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeadersMiddleware_HSTS(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SecurityHeadersConfig
		header http.Header
		want   string
	}{
		{
			name: "plain http with tls-only hsts",
			cfg:  APISecurityHeadersConfig(),
			want: "",
		},
		{
			name:   "forwarded https",
			cfg:    APISecurityHeadersConfig(),
			header: http.Header{"X-Forwarded-Proto": []string{"https"}},
			want:   "max-age=31536000; includeSubDomains",
		},
		{
			name: "always on without subdomains",
			cfg:  SecurityHeadersConfig{HSTSMaxAge: 600},
			want: "max-age=600",
		},
		{
			name: "disabled",
			cfg:  SecurityHeadersConfig{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := applySecurityHeaders(tt.cfg, tt.header)
			if got := w.Header().Get("Strict-Transport-Security"); got != tt.want {
				t.Errorf("Strict-Transport-Security = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersMiddleware_EmptyConfigOmitsOptionalHeaders(t *testing.T) {
	w := applySecurityHeaders(SecurityHeadersConfig{}, nil)
	for _, header := range []string{"X-Frame-Options", "Content-Security-Policy", "Referrer-Policy", "Cache-Control"} {
		if got := w.Header().Get(header); got != "" {
			t.Errorf("%s = %q, want empty", header, got)
		}
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
