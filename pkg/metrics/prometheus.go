package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Draft autosave
	draftSaves          *prometheus.CounterVec
	draftSaveLatency    prometheus.Histogram
	draftDeleteFailures prometheus.Counter
	activeSessions      prometheus.Gauge

	// Final submission
	submissions *prometheus.CounterVec

	// Scoring
	scoreComputations *prometheus.CounterVec
	scoringLatency    prometheus.Histogram
	scoringErrors     prometheus.Counter
	leaderboardSize   *prometheus.GaugeVec

	// Recompute pipeline
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueDequeue       prometheus.Counter
	eventsDuplicate    prometheus.Counter
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter
	workerLatency      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
	rateLimited         prometheus.Counter
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
		namespace:        "pulse",
		subsystem:        "",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.draftSaves = m.counterVec("draft_saves_total",
		"Draft autosave attempts by result (ok, failed, timeout)", "result")
	m.draftSaveLatency = m.histogram("draft_save_latency_milliseconds",
		"Latency of draft persistence calls in milliseconds")
	m.draftDeleteFailures = m.counter("draft_delete_failures_total",
		"Draft deletions after final submit that failed (non-fatal)")
	m.activeSessions = m.gauge("active_sessions",
		"Editing sessions currently open")

	m.submissions = m.counterVec("submissions_total",
		"Final submissions by result (ok, invalid, failed)", "result")

	m.scoreComputations = m.counterVec("score_computations_total",
		"Composite score computations by score kind", "kind")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds",
		"Histogram of composite scoring latency in milliseconds")
	m.scoringErrors = m.counter("scoring_errors_total",
		"Total number of scoring errors")
	m.leaderboardSize = m.gaugeVec("leaderboard_entries",
		"Ranked subjects per score kind", "kind")

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the recompute queue")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Recompute events enqueued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute events rejected by the queue")
	m.queueDequeue = m.counter("queue_dequeue_total", "Recompute events dequeued")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Duplicate recompute events skipped")
	m.workerCount = m.gauge("worker_count", "Current number of recompute workers")
	m.workerErrors = m.counter("worker_errors_total", "Recompute failures inside workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one recompute event in milliseconds")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpErrors = m.counterVec("http_errors_total",
		"HTTP error responses by endpoint and error code", "endpoint", "code")
	m.rateLimited = m.counter("http_rate_limited_total", "Requests rejected by the rate limiter")
}

// Draft and session metrics.

// RecordDraftSave counts a draft save attempt with its outcome and latency.
func RecordDraftSave(result string, latencyMs float64) {
	globalManager.draftSaves.WithLabelValues(result).Inc()
	globalManager.draftSaveLatency.Observe(latencyMs)
}

// RecordDraftDeleteFailure counts a best-effort draft delete that failed.
func RecordDraftDeleteFailure() {
	globalManager.draftDeleteFailures.Inc()
}

// UpdateActiveSessions sets the number of open editing sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSubmission counts a final submission attempt by result.
func RecordSubmission(result string) {
	globalManager.submissions.WithLabelValues(result).Inc()
}

// Scoring metrics.

// RecordScoreComputation counts one composite score computation and its latency.
func RecordScoreComputation(kind string, latencyMs float64) {
	globalManager.scoreComputations.WithLabelValues(kind).Inc()
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringError increments the scoring error counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// UpdateLeaderboardSize sets the number of ranked subjects for a score kind.
func UpdateLeaderboardSize(kind string, count int) {
	globalManager.leaderboardSize.WithLabelValues(kind).Set(float64(count))
}

// Queue and worker metrics.

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordEventDuplicate counts a recompute event skipped by dedupe.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency records how long one event took.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// HTTP metrics.

// RecordHTTPRequest counts a request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an error response by its error code.
func RecordHTTPError(endpoint, code string) {
	globalManager.httpErrors.WithLabelValues(endpoint, code).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited() {
	globalManager.rateLimited.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
