// Package api wires together all HTTP routes for the resource catalog.
//
// Route grouping:
//   - /health, /ready, /version and / are public and unauthenticated.
//   - /api/v1/auth/login and /api/v1/auth/register are public but rate limited
//     with the stricter auth limiter.
//   - Every other /api/v1/ route requires a bearer token. The token's tenant is
//     resolved to a schema-pinned session by TenantScopeMiddleware, so handlers
//     never see another tenant's rows. Each route then checks its RBAC scope.
//
// Prometheus metrics are not served here; the serve command exposes them on a
// separate port.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/resource-catalog/resource-catalog/internal/api/admin"
	"github.com/resource-catalog/resource-catalog/internal/api/catalog"
	"github.com/resource-catalog/resource-catalog/internal/audit"
	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/config"
	"github.com/resource-catalog/resource-catalog/internal/credcheck"
	"github.com/resource-catalog/resource-catalog/internal/crypto"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/jobs"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// Version is the build version reported by / and /version. Release builds set
// it with -ldflags "-X github.com/resource-catalog/resource-catalog/internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	reconciler   *jobs.TenantReconciler
	shipper      *audit.MultiShipper
	rateLimiters []middleware.Limiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reconciler != nil {
		bg.reconciler.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// crudHandlers is the handler set every catalog collection provides
type crudHandlers interface {
	List() gin.HandlerFunc
	Get() gin.HandlerFunc
	Create() gin.HandlerFunc
	Update() gin.HandlerFunc
	Delete() gin.HandlerFunc
}

// NewRouter creates and configures the Gin router. db must reach the global
// schema; tenant schemas are reached through sessions.
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	bg := &BackgroundServices{}
	router := gin.New()

	// Tenancy and identity
	tenants := tenancy.NewRouter(db, tenancy.NewNamer(cfg.MultiTenancy.SchemaPrefix), cfg.Database.Schema)
	provisioner, err := tenancy.NewProvisioner(db, tenants.Namer())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tenant template: %w", err)
	}
	lifecycle := tenancy.NewLifecycle(tenants, provisioner)

	codec, err := auth.NewTokenCodecFromConfig(&cfg.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	coordinator, err := tenancy.NewCoordinator(tenants, auth.NewCredentialVerifier(cfg.Auth.BcryptCost), codec)
	if err != nil {
		return nil, nil, err
	}

	// Registry credential secrets are sealed with the configured key. Without
	// one the credential endpoints answer 503 and everything else works.
	var sealer catalog.SecretSealer
	tokenCipher, err := crypto.NewTokenCipherFromConfig(cfg.Security.EncryptionKey)
	switch {
	case errors.Is(err, crypto.ErrKeyMissing):
		slog.Warn("ENCRYPTION_KEY not set; registry credential endpoints are disabled")
	case err != nil:
		return nil, nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	default:
		sealer = tokenCipher
	}

	// Audit trail
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	bg.shipper = shipper
	var auditShipper audit.Shipper
	if shipper.Len() > 0 {
		auditShipper = shipper
	}
	recorder := audit.NewRecorder(repositories.NewAuditRepository(db), auditShipper)

	// Rate limiters
	var authLimiter, generalLimiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		authLimiter, err = middleware.NewLimiterFromConfig(&cfg.Security.RateLimiting, "auth", middleware.AuthRateLimitConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize auth rate limiter: %w", err)
		}
		generalLimiter, err = middleware.NewLimiterFromConfig(&cfg.Security.RateLimiting, "api",
			middleware.RateLimitConfigFrom(&cfg.Security.RateLimiting))
		if err != nil {
			authLimiter.Stop()
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.rateLimiters = append(bg.rateLimiters, authLimiter, generalLimiter)
	}
	rateLimit := func(l middleware.Limiter) gin.HandlerFunc {
		if l == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimitMiddleware(l)
	}

	// Reconciliation sweep
	if cfg.MultiTenancy.Reconciliation.Enabled {
		bg.reconciler = jobs.NewTenantReconciler(tenants, cfg.MultiTenancy.Reconciliation)
		bg.reconciler.Start(context.Background())
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/", rootHandler(cfg))
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db))
	router.GET("/version", versionHandler())

	// Handlers
	authHandlers := admin.NewAuthHandlers(coordinator, cfg.Auth.AllowSelfRegistration)
	userHandlers := admin.NewUserHandlers(coordinator)
	companyHandlers := admin.NewCompanyHandlers(lifecycle, cfg.MultiTenancy.SeedReferenceData)
	auditLogHandlers := admin.NewAuditLogHandlers(db)
	statsHandler := admin.NewStatsHandler()

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(rateLimit(authLimiter))
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/register", authHandlers.RegisterHandler())
		}

		authenticated := apiV1.Group("")
		authenticated.Use(rateLimit(generalLimiter))
		authenticated.Use(middleware.AuthMiddleware(codec))
		authenticated.Use(middleware.TenantScopeMiddleware(tenants))
		if cfg.Audit.Enabled {
			authenticated.Use(middleware.AuditMiddleware(recorder, &cfg.Audit))
		}
		{
			authenticated.GET("/auth/me", authHandlers.MeHandler())
			authenticated.GET("/stats/dashboard", middleware.RequireScope(auth.ScopeCatalogRead), statsHandler.GetDashboardStats)

			// Users of the caller's company. Non-admins may read and edit
			// their own record; the handler refuses role and status changes.
			users := authenticated.Group("/users")
			{
				users.GET("", middleware.RequireScope(auth.ScopeUsersRead), userHandlers.ListUsersHandler())
				users.POST("", middleware.RequireScope(auth.ScopeUsersWrite), userHandlers.CreateUserHandler())
				users.GET("/:id", middleware.RequireSelfOrScope("id", auth.ScopeUsersRead), userHandlers.GetUserHandler())
				users.PUT("/:id", middleware.RequireSelfOrScope("id", auth.ScopeUsersWrite), userHandlers.UpdateUserHandler())
				users.DELETE("/:id", middleware.RequireScope(auth.ScopeUsersWrite), userHandlers.DeleteUserHandler())
			}

			// Companies are global; only admins hold companies:write.
			companies := authenticated.Group("/companies")
			{
				companies.GET("", middleware.RequireScope(auth.ScopeCompaniesRead), companyHandlers.ListCompaniesHandler())
				companies.POST("", middleware.RequireScope(auth.ScopeCompaniesWrite), companyHandlers.CreateCompanyHandler())
				companies.GET("/:id", middleware.RequireScope(auth.ScopeCompaniesRead), companyHandlers.GetCompanyHandler())
				companies.PUT("/:id", middleware.RequireScope(auth.ScopeCompaniesWrite), companyHandlers.UpdateCompanyHandler())
				companies.DELETE("/:id", middleware.RequireScope(auth.ScopeCompaniesWrite), companyHandlers.DeleteCompanyHandler())
			}

			auditLogs := authenticated.Group("/audit-logs")
			auditLogs.Use(middleware.RequireScope(auth.ScopeAuditRead))
			{
				auditLogs.GET("", auditLogHandlers.ListAuditLogsHandler())
				auditLogs.GET("/:id", auditLogHandlers.GetAuditLogHandler())
			}

			// Tenant catalog
			credentialHandlers := catalog.NewRegistryCredentialHandlers(sealer, credcheck.NewRegistry())
			collections := []struct {
				path     string
				handlers crudHandlers
			}{
				{"/tags", catalog.NewNamedEntryHandlers(repositories.TableTags, "Tag", "tags", "tag")},
				{"/teams", catalog.NewNamedEntryHandlers(repositories.TableTeams, "Team", "teams", "team")},
				{"/cloud-providers", catalog.NewNamedEntryHandlers(repositories.TableCloudProviders, "Cloud provider", "cloud_providers", "cloud_provider")},
				{"/registry-providers", catalog.NewNamedEntryHandlers(repositories.TableRegistryProviders, "Registry provider", "registry_providers", "registry_provider")},
				{"/service-types", catalog.NewServiceTypeHandlers()},
				{"/registry-credentials", credentialHandlers},
				{"/registries", catalog.NewRegistryHandlers()},
				{"/container-images", catalog.NewContainerImageHandlers()},
				{"/versions", catalog.NewVersionHandlers()},
				{"/environments", catalog.NewEnvironmentHandlers()},
				{"/components", catalog.NewComponentHandlers()},
			}
			for _, col := range collections {
				registerCollection(authenticated.Group(col.path), col.handlers)
			}
			authenticated.POST("/registry-credentials/:id/verify",
				middleware.RequireScope(auth.ScopeCatalogWrite),
				credentialHandlers.Verify())
		}
	}

	return router, bg, nil
}

// registerCollection mounts the five CRUD routes of a catalog collection.
// Reads need catalog:read and writes catalog:write.
func registerCollection(group *gin.RouterGroup, h crudHandlers) {
	read := middleware.RequireScope(auth.ScopeCatalogRead)
	write := middleware.RequireScope(auth.ScopeCatalogWrite)

	group.GET("", read, h.List())
	group.POST("", write, h.Create())
	group.GET("/:id", read, h.Get())
	group.PUT("/:id", write, h.Update())
	group.DELETE("/:id", write, h.Delete())
}

// @Summary      Service info
// @Tags         System
// @Produce      json
// @Router       / [get]
// rootHandler returns the service name and version
func rootHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    cfg.Telemetry.ServiceName,
			"version": Version,
		})
	}
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The output format follows the
// global handler installed by telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.GetRequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if tenantID := middleware.GetTenantID(c); tenantID != 0 {
		attrs = append(attrs, slog.Int64("tenant_id", tenantID))
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, slog.String("errors", c.Errors.String()))
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
