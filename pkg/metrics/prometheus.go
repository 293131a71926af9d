// Package metrics provides Prometheus metrics for the ladder service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ladder
	transitionsAccepted *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec
	classResets         prometheus.Counter
	goldReached         prometheus.Counter

	// Spotlight log
	spotlightRecorded  prometheus.Counter
	spotlightDuplicate prometheus.Counter
	spotlightPurged    prometheus.Counter
	spotlightLost      prometheus.Counter
	spotlightEntries   prometheus.Gauge

	// Roster
	rosterSections prometheus.Gauge
	rosterStudents prometheus.Gauge

	// Storage
	storageOpLatency *prometheus.HistogramVec
	storageErrors    *prometheus.CounterVec
	storageParseErrs *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Collectors are registered on the
// configured registry, which defaults to prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ladder",
		subsystem:        "tracker",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.transitionsAccepted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("transitions_accepted_total"),
		Help:        "Tier transitions committed, by target tier",
		ConstLabels: constLabels,
	}, []string{"tier"})

	m.transitionsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("transitions_rejected_total"),
		Help:        "Tier transitions rejected by the forward-only rule, by reason",
		ConstLabels: constLabels,
	}, []string{"reason"})

	m.classResets = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("class_resets_total"),
		Help:        "Number of class progress resets",
		ConstLabels: constLabels,
	})

	m.goldReached = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("gold_reached_total"),
		Help:        "Transitions into the gold tier",
		ConstLabels: constLabels,
	})

	m.spotlightRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("spotlight_recorded_total"),
		Help:        "Spotlight entries appended to the weekly log",
		ConstLabels: constLabels,
	})

	m.spotlightDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("spotlight_duplicate_total"),
		Help:        "Spotlight records skipped because the student already has an entry this week",
		ConstLabels: constLabels,
	})

	m.spotlightPurged = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("spotlight_purged_total"),
		Help:        "Spotlight entries removed by week purges",
		ConstLabels: constLabels,
	})

	m.spotlightLost = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("spotlight_lost_total"),
		Help:        "Gold transitions whose spotlight entry could not be persisted",
		ConstLabels: constLabels,
	})

	m.spotlightEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("spotlight_entries"),
		Help:        "Entries currently held in the spotlight log",
		ConstLabels: constLabels,
	})

	m.rosterSections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("roster_sections"),
		Help:        "Sections loaded from the roster",
		ConstLabels: constLabels,
	})

	m.rosterStudents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("roster_students"),
		Help:        "Students loaded from the roster",
		ConstLabels: constLabels,
	})

	m.storageOpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("storage_op_latency_milliseconds"),
		Help:        "Key-value store operation latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"backend", "op"})

	m.storageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("storage_errors_total"),
		Help:        "Key-value store operation failures",
		ConstLabels: constLabels,
	}, []string{"backend", "op"})

	m.storageParseErrs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("storage_parse_errors_total"),
		Help:        "Persisted values that failed to decode and were read as empty",
		ConstLabels: constLabels,
	}, []string{"entity"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_type_total"),
		Help:        "Errors by type and severity",
		ConstLabels: constLabels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "Errors by endpoint, method and type",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// Ladder metrics.

// RecordTransitionAccepted counts a committed transition into tier.
func RecordTransitionAccepted(tier string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.transitionsAccepted.WithLabelValues(tier).Inc()
	if tier == "gold" {
		globalManager.goldReached.Inc()
	}
}

// RecordTransitionRejected counts a rejected transition; reason is one of
// skip, backward or terminal.
func RecordTransitionRejected(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.transitionsRejected.WithLabelValues(reason).Inc()
}

// RecordClassReset counts a class reset.
func RecordClassReset() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.classResets.Inc()
}

// Spotlight metrics.

// RecordSpotlightRecorded counts a new spotlight entry.
func RecordSpotlightRecorded() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.spotlightRecorded.Inc()
}

// RecordSpotlightDuplicate counts an idempotent no-op record.
func RecordSpotlightDuplicate() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.spotlightDuplicate.Inc()
}

// RecordSpotlightPurged adds n purged entries.
func RecordSpotlightPurged(n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.spotlightPurged.Add(float64(n))
}

// RecordSpotlightLost counts a gold transition whose spotlight entry failed
// to persist.
func RecordSpotlightLost() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.spotlightLost.Inc()
}

// UpdateSpotlightEntries sets the current log size.
func UpdateSpotlightEntries(n int) {
	globalManager.spotlightEntries.Set(float64(n))
}

// Roster metrics.

// UpdateRoster sets the roster gauges.
func UpdateRoster(sections, students int) {
	globalManager.rosterSections.Set(float64(sections))
	globalManager.rosterStudents.Set(float64(students))
}

// Storage metrics.

// RecordStorageOp records a key-value operation latency.
func RecordStorageOp(backend, op string, latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.storageOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStorageError counts a failed key-value operation.
func RecordStorageError(backend, op string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.storageErrors.WithLabelValues(backend, op).Inc()
}

// RecordStorageParseError counts a persisted value that was read as empty.
func RecordStorageParseError(entity string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.storageParseErrs.WithLabelValues(entity).Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// SetEnabled toggles recording of counters on the global manager. It is
// safe to call while requests are being served.
func SetEnabled(enabled bool) {
	globalManager.enabled.Store(enabled)
}

// RefreshInterval returns how often gauge updaters should run.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
