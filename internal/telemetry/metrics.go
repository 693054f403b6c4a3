// Package telemetry provides logging setup and Prometheus metrics for the
// organization management service.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<OMS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use c.FullPath() (the route template) rather than the raw URL to
// keep label cardinality bounded. Organization names never appear as labels.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/org-management/org-service/internal/safego"
)

// HTTP metrics, labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Organization lifecycle metrics.
//
// OrgLifecycleOperationsTotal counts create/update/delete sagas by outcome:
// "success", "rejected" (classified client error), "error" (nothing committed)
// or "failed". "failed" means at least one store write was committed before
// the error, so an operator may need to reconcile.
//
// Example PromQL queries:
//   - Partial failures:  increase(org_lifecycle_operations_total{outcome="failed"}[1h]) > 0
var (
	OrgLifecycleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_lifecycle_operations_total",
			Help: "Total number of organization lifecycle operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	OrgLifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "org_lifecycle_duration_seconds",
			Help:    "Duration of organization lifecycle operations, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	TenantCollectionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_collection_operations_total",
			Help: "Total number of tenant collection provision/rename/destroy calls, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// Tenant reconciliation gauges, set after every reconciler run.
//
// Example PromQL queries:
//   - Orphans present:  tenant_collections_orphaned > 0
var (
	TenantCollectionsOrphaned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_collections_orphaned",
			Help: "Tenant collections with no organization record, as of the last reconciliation.",
		},
	)

	TenantCollectionsMissing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_collections_missing",
			Help: "Organizations whose tenant collection does not exist, as of the last reconciliation.",
		},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_reconcile_runs_total",
			Help: "Total number of tenant reconciliation runs, by outcome.",
		},
		[]string{"outcome"},
	)
)

// AdminLoginAttemptsTotal counts login attempts by outcome ("success", "invalid_credentials", "error").
var AdminLoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_login_attempts_total",
		Help: "Total number of admin login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB
// pool. It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until
// ctx is cancelled or the database becomes unreachable. The returned channel
// is closed when the collector exits.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) <-chan struct{} {
	return safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
