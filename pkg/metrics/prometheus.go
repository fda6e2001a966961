// Package metrics provides Prometheus metrics for the request deduplicator
// and the dedup proxy.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the module.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Deduplication
	dedupRequests         *prometheus.CounterVec
	dedupRejections       *prometheus.CounterVec
	dedupOperationLatency *prometheus.HistogramVec
	dedupPendingEntries   prometheus.Gauge
	dedupCompletedRecords prometheus.Gauge
	dedupCleanupRemoved   *prometheus.CounterVec

	// Proxy
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	upstreamRequests    *prometheus.CounterVec
	upstreamErrors      prometheus.Counter

	// Errors
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance. Use may swap it while other goroutines
// record, so it is only read through Load.
var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "shared",
		subsystem:        "dedup",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recording is switched on.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge snapshots should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.dedupRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "requests_total",
		Help:        "Requests seen by the deduplicator by mode and outcome (executed or attached)",
		ConstLabels: labels,
	}, []string{"mode", "outcome"})

	m.dedupRejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rejections_total",
		Help:        "Requests rejected without running, by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.dedupOperationLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "operation_duration_milliseconds",
		Help:        "Duration of shared operations in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"result"})

	m.dedupPendingEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pending_entries",
		Help:        "Current number of in-flight request keys",
		ConstLabels: labels,
	})

	m.dedupCompletedRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "completed_records",
		Help:        "Current number of keys in their post-completion cool-down table",
		ConstLabels: labels,
	})

	m.dedupCleanupRemoved = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cleanup_removed_total",
		Help:        "Entries removed by cleanup, by table",
		ConstLabels: labels,
	}, []string{"table"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "upstream_requests_total",
		Help:        "Requests actually sent to the upstream API, by method",
		ConstLabels: labels,
	}, []string{"method"})

	m.upstreamErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "upstream_errors_total",
		Help:        "Upstream round trips that failed before a response arrived",
		ConstLabels: labels,
	})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_type_total",
		Help:        "Total number of errors by type",
		ConstLabels: labels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_endpoint_total",
		Help:        "Total number of errors by endpoint",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// Deduplication metrics.

// RecordDedupExecuted counts a request that launched its own operation.
func RecordDedupExecuted(mode string) {
	m := globalManager.Load()
	if !m.enabled {
		return
	}
	m.dedupRequests.WithLabelValues(mode, "executed").Inc()
}

// RecordDedupAttached counts a request that attached to an in-flight operation.
func RecordDedupAttached(mode string) {
	m := globalManager.Load()
	if !m.enabled {
		return
	}
	m.dedupRequests.WithLabelValues(mode, "attached").Inc()
}

// RecordDedupRejected counts a rejected request.
func RecordDedupRejected(reason string) {
	m := globalManager.Load()
	if !m.enabled {
		return
	}
	m.dedupRejections.WithLabelValues(reason).Inc()
}

// RecordDedupOperationLatency records how long a shared operation ran.
func RecordDedupOperationLatency(result string, latencyMs float64) {
	m := globalManager.Load()
	if !m.enabled {
		return
	}
	m.dedupOperationLatency.WithLabelValues(result).Observe(latencyMs)
}

// UpdateDedupTables sets the pending and completed table sizes.
func UpdateDedupTables(pending, completed int) {
	m := globalManager.Load()
	if !m.enabled {
		return
	}
	m.dedupPendingEntries.Set(float64(pending))
	m.dedupCompletedRecords.Set(float64(completed))
}

// RecordDedupCleanupRemoved adds n removed entries for table.
func RecordDedupCleanupRemoved(table string, n int) {
	m := globalManager.Load()
	if !m.enabled || n <= 0 {
		return
	}
	m.dedupCleanupRemoved.WithLabelValues(table).Add(float64(n))
}

// Proxy metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.Load().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.Load().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordUpstreamRequest counts a request sent to the upstream API.
func RecordUpstreamRequest(method string) {
	globalManager.Load().upstreamRequests.WithLabelValues(method).Inc()
}

// RecordUpstreamError counts a failed upstream round trip.
func RecordUpstreamError() {
	globalManager.Load().upstreamErrors.Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.Load().errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.Load().errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.Load().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.Load().systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.Load().systemGCPauseTime.Observe(pauseMs)
}

// Use swaps the package-level manager that the Record*/Update* helpers write
// to and returns a function restoring the previous one.
func Use(m *Manager) (restore func(), err error) {
	if m == nil {
		return func() {}, ErrNilManager
	}
	prev := globalManager.Swap(m)
	return func() { globalManager.Store(prev) }, nil
}

// RefreshInterval is how often the current manager wants gauge snapshots
// refreshed.
func RefreshInterval() time.Duration {
	return globalManager.Load().refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
