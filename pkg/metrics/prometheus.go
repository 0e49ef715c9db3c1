// Package metrics provides Prometheus metrics for the flight compliance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Compliance checks
	checks            *prometheus.CounterVec
	checksDuplicate   prometheus.Counter
	checkLatency      prometheus.Histogram
	validationErrors  *prometheus.CounterVec
	zoneLookupFailure prometheus.Counter
	zoneBreakerState  prometheus.Gauge
	zoneCount         prometheus.Gauge

	// Risk model
	predictions       prometheus.Counter
	predictionSkipped *prometheus.CounterVec
	recommendations   *prometheus.CounterVec
	trainingRuns      *prometheus.CounterVec
	trainingDuration  prometheus.Histogram
	modelVersion      prometheus.Gauge
	modelAccuracy     *prometheus.GaugeVec

	// Persistence
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram
	persistenceFailures     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerRetryCount        prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "flightguard",
		subsystem:        "compliance",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	if len(buckets) == 0 {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	msBuckets := []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

	m.checks = auto.NewCounterVec(m.counter("checks_total", "Compliance checks by verdict"), []string{"result"})
	m.checksDuplicate = auto.NewCounter(m.counter("checks_duplicate_total", "Resubmitted telemetry samples (evaluated, not re-persisted)"))
	m.checkLatency = auto.NewHistogram(m.histogram("check_latency_milliseconds", "End-to-end compliance check latency", msBuckets))
	m.validationErrors = auto.NewCounterVec(m.counter("validation_errors_total", "Rejected telemetry by offending field"), []string{"field"})
	m.zoneLookupFailure = auto.NewCounter(m.counter("zone_lookup_failures_total", "Restricted zone lookups that failed"))
	m.zoneBreakerState = auto.NewGauge(m.gauge("zone_breaker_state", "Zone lookup breaker state (0 closed, 1 half-open, 2 open)"))
	m.zoneCount = auto.NewGauge(m.gauge("zones_active", "Active restricted zones in the current index"))

	m.predictions = auto.NewCounter(m.counter("predictions_total", "Risk predictions served"))
	m.predictionSkipped = auto.NewCounterVec(m.counter("predictions_skipped_total", "Checks answered rule-only, by reason"), []string{"reason"})
	m.recommendations = auto.NewCounterVec(m.counter("recommendations_total", "Recommendations emitted by action"), []string{"action"})
	m.trainingRuns = auto.NewCounterVec(m.counter("training_runs_total", "Training runs by outcome"), []string{"outcome"})
	m.trainingDuration = auto.NewHistogram(m.histogram("training_duration_seconds", "Wall time of completed training runs",
		[]float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600}))
	m.modelVersion = auto.NewGauge(m.gauge("model_version", "Active risk model snapshot version"))
	m.modelAccuracy = auto.NewGaugeVec(m.gauge("model_accuracy", "Accuracy of the active snapshot by split"), []string{"split"})

	m.repositoryUpdateLatency = auto.NewHistogram(m.histogram("repository_update_latency_milliseconds", "Repository write latency", msBuckets))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogram("repository_query_latency_milliseconds", "Repository read latency", msBuckets))
	m.persistenceFailures = auto.NewCounter(m.counter("persistence_failures_total", "Flight records dropped after retries"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration", msBuckets),
		[]string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Flight records waiting for persistence"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Persistence queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gauge("queue_utilization_ratio", "Persistence queue fill ratio"))
	m.queueEnqueueRate = auto.NewCounter(m.counter("queue_enqueue_total", "Flight records enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counter("queue_dequeue_total", "Flight records dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected"))

	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Persistence workers"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Persistence workers currently running"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Per-record persistence latency", msBuckets))
	m.workerErrorRate = auto.NewCounter(m.counter("worker_errors_total", "Persistence attempts that failed"))
	m.workerRetryCount = auto.NewCounter(m.counter("worker_retries_total", "Persistence retries"))

	m.errorRateByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counter("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: "system", Name: "memory_bytes",
		Help: "Heap bytes allocated", ConstLabels: m.constLabels})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: "system", Name: "goroutines",
		Help: "Live goroutines", ConstLabels: m.constLabels})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: "system", Name: "gc_pause_milliseconds",
		Help: "Average GC pause", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50}, ConstLabels: m.constLabels})
}

// RecordCheck counts a compliance verdict.
func RecordCheck(compliant bool) {
	result := "noncompliant"
	if compliant {
		result = "compliant"
	}
	globalManager.checks.WithLabelValues(result).Inc()
}

// RecordCheckDuplicate counts a resubmitted sample.
func RecordCheckDuplicate() {
	globalManager.checksDuplicate.Inc()
}

// RecordCheckLatency records check latency in milliseconds.
func RecordCheckLatency(latencyMs float64) {
	globalManager.checkLatency.Observe(latencyMs)
}

// RecordValidationError counts a rejected payload by field.
func RecordValidationError(field string) {
	globalManager.validationErrors.WithLabelValues(field).Inc()
}

// RecordZoneLookupFailure counts a failed zone lookup.
func RecordZoneLookupFailure() {
	globalManager.zoneLookupFailure.Inc()
}

// UpdateZoneBreakerState sets the breaker state gauge.
func UpdateZoneBreakerState(state int) {
	globalManager.zoneBreakerState.Set(float64(state))
}

// UpdateZoneCount sets the number of indexed zones.
func UpdateZoneCount(count int) {
	globalManager.zoneCount.Set(float64(count))
}

// RecordPrediction counts a served prediction.
func RecordPrediction() {
	globalManager.predictions.Inc()
}

// RecordPredictionSkipped counts a rule-only answer.
func RecordPredictionSkipped(reason string) {
	globalManager.predictionSkipped.WithLabelValues(reason).Inc()
}

// RecordRecommendation counts an emitted recommendation.
func RecordRecommendation(action string) {
	globalManager.recommendations.WithLabelValues(action).Inc()
}

// RecordTrainingRun counts a finished training run ("ok", "insufficient_data", "cancelled", "failed").
func RecordTrainingRun(outcome string) {
	globalManager.trainingRuns.WithLabelValues(outcome).Inc()
}

// RecordTrainingDuration records training wall time in seconds.
func RecordTrainingDuration(seconds float64) {
	globalManager.trainingDuration.Observe(seconds)
}

// UpdateModelVersion sets the active snapshot version.
func UpdateModelVersion(version int64) {
	globalManager.modelVersion.Set(float64(version))
}

// UpdateModelAccuracy sets training and validation accuracy of the active snapshot.
func UpdateModelAccuracy(training, validation float64) {
	globalManager.modelAccuracy.WithLabelValues("training").Set(training)
	globalManager.modelAccuracy.WithLabelValues("validation").Set(validation)
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordPersistenceFailure counts a flight record dropped after retries.
func RecordPersistenceFailure() {
	globalManager.persistenceFailures.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() {
	globalManager.workerRetryCount.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
