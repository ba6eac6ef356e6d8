// Package telemetry provides application-level observability for the resource catalog.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by the serve command:
//
//	GET http://<host>:<RCAT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Tenant provisioning outcomes and durations
//   - Saga compensations and identity consistency faults
//   - Reconciler findings
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/tags/:id) rather
// than the raw request URL. Tenant IDs are never used as label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(catalog_http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(catalog_http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Tenant provisioning metrics, recorded by the company lifecycle saga.
//
// TenantProvisioningTotal carries an {outcome} label: "committed", "rolled_back",
// "critical_fault", or "seed_failed" (schema created, reference data missing).
//
// Example PromQL queries:
//   - Failure ratio:  sum(rate(catalog_tenant_provisioning_total{outcome!="committed"}[1h])) / sum(rate(catalog_tenant_provisioning_total[1h]))
var (
	TenantProvisioningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_tenant_provisioning_total",
			Help: "Total number of tenant provisioning attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	TenantProvisioningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_tenant_provisioning_duration_seconds",
			Help:    "Duration of creating a company row, its schema, and its reference data.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Saga metrics.
//
// SagaCompensationsTotal counts compensations that ran, by saga and the step
// being undone. IdentityConsistencyFaultsTotal counts sagas that ended with
// global and tenant data disagreeing; any increase should page an operator.
//
// Example PromQL queries:
//   - Alert expression:  increase(catalog_identity_consistency_faults_total[15m]) > 0
var (
	SagaCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_saga_compensations_total",
			Help: "Total number of saga compensations executed, by saga and step.",
		},
		[]string{"saga", "step"},
	)

	IdentityConsistencyFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_identity_consistency_faults_total",
			Help: "Total number of operations that left global and tenant data inconsistent, by operation.",
		},
		[]string{"operation"},
	)
)

// ReconcilerFindingsTotal counts inconsistencies found by the reconciliation
// sweep, by {kind}: "orphan_company", "stale_lookup", "unindexed_user",
// "orphan_schema".
var ReconcilerFindingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_reconciler_findings_total",
		Help: "Total number of inconsistencies found by the tenant reconciler, by kind.",
	},
	[]string{"kind"},
)

// BackgroundPanicsTotal counts panics recovered in background tasks, by {task}:
// "audit_ship", "tenant_reconciler".
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_background_panics_total",
		Help: "Total number of panics recovered in background tasks, by task.",
	},
	[]string{"task"},
)

// LoginAttemptsTotal counts logins by {outcome}: "success", "invalid_credentials",
// "inactive", "error".
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_login_attempts_total",
		Help: "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. Sessions pin a connection for the duration
// of a request, so this tracks concurrent tenant requests closely.
//
// Example PromQL queries:
//   - Pool utilisation (%): catalog_db_open_connections / <RCAT_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "catalog_db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge. It
// stops when ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
