package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for Umbra metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	violationsTotal      *prometheus.CounterVec
	elevationsTotal      *prometheus.CounterVec
	repositoryOpsTotal   *prometheus.CounterVec
	resolutionsTotal     *prometheus.CounterVec
	lookupCacheHitsTotal prometheus.Counter
	lookupCacheMissTotal prometheus.Counter

	// Histograms
	elevationDuration  prometheus.Histogram
	repositoryDuration *prometheus.HistogramVec
}

// Default histogram buckets for operation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "isolation_violations_total",
				Help:      "Total number of blocked cross-tenant operations",
			},
			[]string{"entity_type", "op"},
		),

		elevationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "elevations_total",
				Help:      "Total number of closed elevation scopes",
			},
			[]string{"outcome"},
		),

		repositoryOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_operations_total",
				Help:      "Total number of repository operations",
			},
			[]string{"entity_type", "op", "status"},
		),

		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_resolutions_total",
				Help:      "Total number of inbound tenant resolutions",
			},
			[]string{"status"},
		),

		lookupCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_lookup_cache_hits_total",
				Help:      "Tenant lookup cache hits",
			},
		),

		lookupCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_lookup_cache_misses_total",
				Help:      "Tenant lookup cache misses",
			},
		),

		elevationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "elevation_duration_ms",
				Help:      "Elevation scope duration in milliseconds",
				Buckets:   buckets,
			},
		),

		repositoryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repository_operation_duration_ms",
				Help:      "Repository operation duration in milliseconds",
				Buckets:   buckets,
			},
			[]string{"entity_type", "op"},
		),
	}

	registry.MustRegister(
		pm.violationsTotal,
		pm.elevationsTotal,
		pm.repositoryOpsTotal,
		pm.resolutionsTotal,
		pm.lookupCacheHitsTotal,
		pm.lookupCacheMissTotal,
		pm.elevationDuration,
		pm.repositoryDuration,
	)

	promMetrics = pm
}

// Handler returns the HTTP handler for the /metrics endpoint, or a 404
// handler when the subsystem was never initialized.
func Handler() http.Handler {
	if promMetrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// RecordViolation counts one blocked cross-tenant operation.
func RecordViolation(entityType, op string) {
	if promMetrics == nil {
		return
	}
	promMetrics.violationsTotal.WithLabelValues(entityType, op).Inc()
}

// RecordElevation counts one closed elevation scope and observes its duration.
func RecordElevation(outcome string, duration time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.elevationsTotal.WithLabelValues(outcome).Inc()
	promMetrics.elevationDuration.Observe(float64(duration.Milliseconds()))
}

// RecordRepositoryOp counts one repository operation and observes its duration.
func RecordRepositoryOp(entityType, op, status string, duration time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.repositoryOpsTotal.WithLabelValues(entityType, op, status).Inc()
	promMetrics.repositoryDuration.WithLabelValues(entityType, op).Observe(float64(duration.Milliseconds()))
}

// RecordResolution counts one inbound tenant resolution attempt.
func RecordResolution(status string) {
	if promMetrics == nil {
		return
	}
	promMetrics.resolutionsTotal.WithLabelValues(status).Inc()
}

// RecordLookupCache counts a tenant lookup cache hit or miss.
func RecordLookupCache(hit bool) {
	if promMetrics == nil {
		return
	}
	if hit {
		promMetrics.lookupCacheHitsTotal.Inc()
	} else {
		promMetrics.lookupCacheMissTotal.Inc()
	}
}
