package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Training outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Manager manages all Prometheus metrics for the noderank service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	trainingBuckets  []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Model lifecycle
	modelsCreated    prometheus.Counter
	modelsDeleted    prometheus.Counter
	modelsTotal      prometheus.Gauge
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingLoss     prometheus.Gauge
	artifactBytes    prometheus.Histogram
	artifactOrphans  prometheus.Counter

	// Ranking
	rankRequests    prometheus.Counter
	rankLatency     prometheus.Histogram
	rankCandidates  prometheus.Histogram
	inferenceErrors prometheus.Counter
	predictorLoads  prometheus.Counter
	predictorShared prometheus.Counter

	// Record store
	storeQueryLatency *prometheus.HistogramVec

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter
	queueWaitLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency *prometheus.HistogramVec
	workerErrors            *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPause        prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "noderank",
		subsystem:        "models",
		histogramBuckets: prometheus.ExponentialBuckets(0.5, 2, 16),
		trainingBuckets:  prometheus.ExponentialBuckets(5, 2, 14),
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
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.modelsCreated = auto.NewCounter(m.counter("created_total", "Models created and bootstrapped"))
	m.modelsDeleted = auto.NewCounter(m.counter("deleted_total", "Models deleted"))
	m.modelsTotal = auto.NewGauge(m.gauge("records", "Model records currently stored"))
	m.trainingRuns = auto.NewCounterVec(m.counter("training_runs_total", "Training runs by outcome"), []string{"outcome"})
	m.trainingDuration = auto.NewHistogram(m.histogram("training_duration_milliseconds", "Wall time of a training run", m.trainingBuckets))
	m.trainingLoss = auto.NewGauge(m.gauge("training_final_loss", "Final loss of the most recent successful training run"))
	m.artifactBytes = auto.NewHistogram(m.histogram("artifact_bytes", "Size of saved artifacts", prometheus.ExponentialBuckets(256, 2, 12)))
	m.artifactOrphans = auto.NewCounter(m.counter("artifact_cleanup_failures_total", "Artifacts that could not be removed"))

	m.rankRequests = auto.NewCounter(m.counter("rank_requests_total", "Ranking requests served"))
	m.rankLatency = auto.NewHistogram(m.histogram("rank_latency_milliseconds", "Ranking latency", m.histogramBuckets))
	m.rankCandidates = auto.NewHistogram(m.histogram("rank_candidates", "Candidates per ranking request", prometheus.ExponentialBuckets(1, 4, 8)))
	m.inferenceErrors = auto.NewCounter(m.counter("inference_errors_total", "Ranking requests that failed to load or predict"))
	m.predictorLoads = auto.NewCounter(m.counter("predictor_loads_total", "Artifacts loaded for inference"))
	m.predictorShared = auto.NewCounter(m.counter("predictor_loads_shared_total", "Inference loads served by a concurrent load"))

	m.storeQueryLatency = auto.NewHistogramVec(m.histogram("store_query_latency_milliseconds", "Record store latency by operation", m.histogramBuckets), []string{"op"})

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Maximum queued jobs"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Jobs dequeued"))
	m.queueRejected = auto.NewCounter(m.counter("queue_rejected_total", "Jobs rejected because the queue was full"))
	m.queueWaitLatency = auto.NewHistogram(m.histogram("queue_wait_milliseconds", "Time jobs spend queued", m.histogramBuckets))

	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Configured workers"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Workers running a job"))
	m.workerProcessingLatency = auto.NewHistogramVec(m.histogram("worker_processing_milliseconds", "Job run time by kind", m.histogramBuckets), []string{"kind"})
	m.workerErrors = auto.NewCounterVec(m.counter("worker_errors_total", "Failed jobs by kind"), []string{"kind"})

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and kind"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counter("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutines", "Goroutine count"))
	m.systemGCPause = auto.NewGauge(m.gauge("system_gc_pause_milliseconds", "Average GC pause"))
}

// Model lifecycle.

// RecordModelCreated increments the created counter.
func RecordModelCreated() { globalManager.modelsCreated.Inc() }

// RecordModelDeleted increments the deleted counter.
func RecordModelDeleted() { globalManager.modelsDeleted.Inc() }

// UpdateModelsTotal sets the number of stored records.
func UpdateModelsTotal(count int) { globalManager.modelsTotal.Set(float64(count)) }

// RecordTrainingRun counts a training run and, on success, its duration and loss.
func RecordTrainingRun(outcome string, durationMs, finalLoss float64) {
	globalManager.trainingRuns.WithLabelValues(outcome).Inc()
	globalManager.trainingDuration.Observe(durationMs)
	if outcome == OutcomeSuccess {
		globalManager.trainingLoss.Set(finalLoss)
	}
}

// RecordArtifactBytes observes the size of a saved artifact.
func RecordArtifactBytes(n int64) { globalManager.artifactBytes.Observe(float64(n)) }

// RecordArtifactCleanupFailure counts an artifact left behind after a failed removal.
func RecordArtifactCleanupFailure() { globalManager.artifactOrphans.Inc() }

// Ranking.

// RecordRank records one ranking request.
func RecordRank(candidates int, latencyMs float64) {
	globalManager.rankRequests.Inc()
	globalManager.rankCandidates.Observe(float64(candidates))
	globalManager.rankLatency.Observe(latencyMs)
}

// RecordInferenceError counts a failed ranking request.
func RecordInferenceError() { globalManager.inferenceErrors.Inc() }

// RecordPredictorLoad counts an artifact load; shared is true when the result
// came from a concurrent caller's load.
func RecordPredictorLoad(shared bool) {
	if shared {
		globalManager.predictorShared.Inc()
		return
	}
	globalManager.predictorLoads.Inc()
}

// Record store.

// RecordStoreQueryLatency observes one record store call.
func RecordStoreQueryLatency(op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter and observes queue wait time.
func RecordQueueDequeue(waitMs float64) {
	globalManager.queueDequeued.Inc()
	globalManager.queueWaitLatency.Observe(waitMs)
}

// RecordQueueRejected counts a job refused by a full queue.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency observes the run time of a job.
func RecordWorkerProcessingLatency(kind string, latencyMs float64) {
	globalManager.workerProcessingLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError(kind string) { globalManager.workerErrors.WithLabelValues(kind).Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime sets the average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPause.Set(ms) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
