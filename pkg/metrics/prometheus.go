// Package metrics provides Prometheus metrics for the gridcast prediction service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the gridcast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Core Business Metrics - What really matters for a prediction service
	predictionsServed   prometheus.Counter
	predictionsDegraded prometheus.Counter
	predictionsFailed   *prometheus.CounterVec
	ensembleConfidence  prometheus.Histogram
	ensembleProbability prometheus.Histogram

	// Model Metrics - Per-model invocation health
	modelInvocations *prometheus.CounterVec
	modelFailures    *prometheus.CounterVec
	modelTimeouts    *prometheus.CounterVec
	modelLatency     *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
	imputedFeatures  *prometheus.CounterVec
	registeredModels prometheus.Gauge

	// Resilience Metrics - Cache and request collapsing
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheSize       prometheus.Gauge
	flightCollapses prometheus.Counter

	// Feature Store Metrics
	featureFetchLatency prometheus.Histogram
	featureFetchErrors  prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     prometheus.Counter

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gridcast",
		subsystem:        "ensemble",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	m.predictionsServed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_served_total",
		Help:      "Total number of combined predictions returned to callers",
	})

	m.predictionsDegraded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_degraded_total",
		Help:      "Total number of predictions served with the degraded flag set",
	})

	m.predictionsFailed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "predictions_failed_total",
			Help:      "Total number of prediction requests that returned an error",
		},
		[]string{"reason"},
	)

	m.ensembleConfidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "confidence",
		Help:      "Distribution of combined prediction confidence scores",
		Buckets:   []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95},
	})

	m.ensembleProbability = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "win_probability",
		Help:      "Distribution of combined home win probabilities",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
	})

	m.modelInvocations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_invocations_total",
			Help:      "Total number of per-model predict calls",
		},
		[]string{"model"},
	)

	m.modelFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_failures_total",
			Help:      "Total number of per-model predict failures by reason",
		},
		[]string{"model", "reason"},
	)

	m.modelTimeouts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_timeouts_total",
			Help:      "Total number of per-model predict timeouts",
		},
		[]string{"model"},
	)

	m.modelLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "model_latency_milliseconds",
			Help:      "Per-model predict latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"model"},
	)

	m.breakerState = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per model (0=healthy 1=degraded 2=unavailable 3=half_open)",
		},
		[]string{"model"},
	)

	m.imputedFeatures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "imputed_features_total",
			Help:      "Total number of feature values imputed during alignment",
		},
		[]string{"model"},
	)

	m.registeredModels = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registered_models",
		Help:      "Number of models currently loaded in the registry",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total number of result cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of result cache misses",
	})

	m.cacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_size",
		Help:      "Current number of result cache entries",
	})

	m.flightCollapses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "flight_collapses_total",
		Help:      "Total number of requests that joined an in-flight computation",
	})

	m.featureFetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_fetch_latency_milliseconds",
		Help:      "Feature snapshot fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.featureFetchErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_fetch_errors_total",
		Help:      "Total number of feature snapshot fetch failures",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_rate_limited_total",
		Help:      "Total number of HTTP requests rejected by the rate limiter",
	})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordPredictionServed increments the served counter and observes the
// ensemble outputs.
func RecordPredictionServed(confidence, probability float64, degraded bool) {
	globalManager.predictionsServed.Inc()
	globalManager.ensembleConfidence.Observe(confidence)
	globalManager.ensembleProbability.Observe(probability)
	if degraded {
		globalManager.predictionsDegraded.Inc()
	}
}

// RecordPredictionFailed increments the failed prediction counter.
func RecordPredictionFailed(reason string) {
	globalManager.predictionsFailed.WithLabelValues(reason).Inc()
}

// RecordModelInvocation increments the per-model invocation counter.
func RecordModelInvocation(modelID string) {
	globalManager.modelInvocations.WithLabelValues(modelID).Inc()
}

// RecordModelFailure increments the per-model failure counter.
func RecordModelFailure(modelID, reason string) {
	globalManager.modelFailures.WithLabelValues(modelID, reason).Inc()
}

// RecordModelTimeout increments the per-model timeout counter.
func RecordModelTimeout(modelID string) {
	globalManager.modelTimeouts.WithLabelValues(modelID).Inc()
}

// RecordModelLatency records a per-model predict latency in milliseconds.
func RecordModelLatency(modelID string, latencyMs float64) {
	globalManager.modelLatency.WithLabelValues(modelID).Observe(latencyMs)
}

// UpdateBreakerState publishes a model's breaker state as a numeric gauge.
func UpdateBreakerState(modelID string, state float64) {
	globalManager.breakerState.WithLabelValues(modelID).Set(state)
}

// RecordImputedFeatures adds to the per-model imputation counter.
func RecordImputedFeatures(modelID string, count int) {
	if count > 0 {
		globalManager.imputedFeatures.WithLabelValues(modelID).Add(float64(count))
	}
}

// UpdateRegisteredModels sets the loaded model count.
func UpdateRegisteredModels(count int) {
	globalManager.registeredModels.Set(float64(count))
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheSize sets the current cache entry count.
func UpdateCacheSize(size int) {
	globalManager.cacheSize.Set(float64(size))
}

// RecordFlightCollapse increments the in-flight collapse counter.
func RecordFlightCollapse() {
	globalManager.flightCollapses.Inc()
}

// RecordFeatureFetchLatency records a feature fetch latency in milliseconds.
func RecordFeatureFetchLatency(latencyMs float64) {
	globalManager.featureFetchLatency.Observe(latencyMs)
}

// RecordFeatureFetchError increments the feature fetch error counter.
func RecordFeatureFetchError() {
	globalManager.featureFetchErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPRateLimited increments the rate-limited request counter.
func RecordHTTPRateLimited() {
	globalManager.httpRateLimited.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
