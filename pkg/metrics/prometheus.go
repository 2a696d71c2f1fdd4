// Package metrics provides Prometheus metrics for the LEM assessment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds. Model calls dominate, so the range is wide.
var defaultLatencyBuckets = []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 60000, 120000}

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Assessment pipeline
	assessments        *prometheus.CounterVec
	stageLatency       *prometheus.HistogramVec
	stageFailures      *prometheus.CounterVec
	scoreFallbacks     *prometheus.CounterVec
	extractionRepairs  *prometheus.CounterVec
	finalScores        *prometheus.HistogramVec
	assessmentCost     prometheus.Counter
	inflightAssessment prometheus.Gauge

	// Model endpoint
	llmCalls   *prometheus.CounterVec
	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	// Administrative state changes
	configChanges *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Calibration queue and workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueRejected     *prometheus.CounterVec
	workerActive      prometheus.Gauge
	workerJobLatency  prometheus.Histogram
	workerJobFailures prometheus.Counter

	// Result sink
	sinkWrites *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// collectors are registered on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lem",
		subsystem:        "assessment",
		histogramBuckets: defaultLatencyBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.assessments = m.counterVec("assessments_total",
		"Assessments by competency and terminal state (done, rejected, failed)", "competency", "outcome")
	m.stageLatency = m.histogramVec("stage_latency_milliseconds",
		"Latency of each pipeline stage", m.histogramBuckets, "stage")
	m.stageFailures = m.counterVec("stage_failures_total",
		"Pipeline failures by stage and error kind", "stage", "kind")
	m.scoreFallbacks = m.counterVec("score_fallbacks_total",
		"Dimension scores produced by the quote-count heuristic instead of the model", "competency")
	m.extractionRepairs = m.counterVec("extraction_steps_total",
		"Structured extraction successes by recovery step", "step")
	m.finalScores = m.histogramVec("final_score",
		"Distribution of quantized final scores", []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4}, "competency")
	m.assessmentCost = m.counter("cost_usd_total", "Accumulated model cost in USD")
	m.inflightAssessment = m.gauge("inflight", "Assessments currently running")

	m.llmCalls = m.counterVec("llm_calls_total",
		"Model endpoint calls by provider, stage and status", "provider", "stage", "status")
	m.llmTokens = m.counterVec("llm_tokens_total",
		"Tokens exchanged with the model endpoint", "provider", "direction")
	m.llmLatency = m.histogramVec("llm_latency_milliseconds",
		"Model endpoint round trip latency", m.histogramBuckets, "provider")

	m.configChanges = m.counterVec("config_changes_total",
		"Administrative changes to rubric, prompts or model selection", "kind")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration", m.histogramBuckets, "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total",
		"HTTP error responses by endpoint, method and error type", "endpoint", "method", "error_type")

	m.queueSize = m.gauge("calibration_queue_size", "Calibration jobs waiting in the queue")
	m.queueCapacity = m.gauge("calibration_queue_capacity", "Calibration queue capacity")
	m.queueEnqueued = m.counter("calibration_enqueued_total", "Calibration jobs accepted by the queue")
	m.queueRejected = m.counterVec("calibration_rejected_total", "Calibration jobs refused by the queue", "reason")
	m.workerActive = m.gauge("calibration_workers", "Calibration workers running")
	m.workerJobLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "calibration_job_latency_milliseconds",
		Help: "End to end latency of one calibration job", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	})
	m.workerJobFailures = m.counter("calibration_job_failures_total", "Calibration jobs that ended in error")

	m.sinkWrites = m.counterVec("sink_writes_total", "Result sink writes by backend and status", "backend", "status")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordAssessment counts one terminal assessment outcome.
func RecordAssessment(competency, outcome string) {
	globalManager.assessments.WithLabelValues(competency, outcome).Inc()
}

// RecordStageLatency observes the latency of one stage.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordStageFailure counts a stage failure.
func RecordStageFailure(stage, kind string) {
	globalManager.stageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordScoreFallback counts a heuristic dimension score.
func RecordScoreFallback(competency string) {
	globalManager.scoreFallbacks.WithLabelValues(competency).Inc()
}

// RecordExtractionStep counts which recovery step produced a JSON object.
func RecordExtractionStep(step string) {
	globalManager.extractionRepairs.WithLabelValues(step).Inc()
}

// RecordFinalScore observes a quantized final score.
func RecordFinalScore(competency string, score float64) {
	globalManager.finalScores.WithLabelValues(competency).Observe(score)
}

// RecordAssessmentCost adds to the accumulated model cost.
func RecordAssessmentCost(usd float64) {
	if usd > 0 {
		globalManager.assessmentCost.Add(usd)
	}
}

// IncInflight and DecInflight track running assessments.
func IncInflight() { globalManager.inflightAssessment.Inc() }

// DecInflight decrements the running assessments gauge.
func DecInflight() { globalManager.inflightAssessment.Dec() }

// RecordLLMCall counts one model endpoint call.
func RecordLLMCall(provider, stage, status string) {
	globalManager.llmCalls.WithLabelValues(provider, stage, status).Inc()
}

// RecordLLMTokens adds token counts; direction is "input" or "output".
func RecordLLMTokens(provider, direction string, n int) {
	if n > 0 {
		globalManager.llmTokens.WithLabelValues(provider, direction).Add(float64(n))
	}
}

// RecordLLMLatency observes a model call round trip.
func RecordLLMLatency(provider string, latencyMs float64) {
	globalManager.llmLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordConfigChange counts an administrative change ("rubric", "weights", "prompt", "llm").
func RecordConfigChange(kind string) {
	globalManager.configChanges.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the number of queued calibration jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the calibration queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted calibration job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a refused calibration job.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of calibration workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerJobLatency observes one calibration job.
func RecordWorkerJobLatency(latencyMs float64) {
	globalManager.workerJobLatency.Observe(latencyMs)
}

// RecordWorkerJobFailure counts a failed calibration job.
func RecordWorkerJobFailure() {
	globalManager.workerJobFailures.Inc()
}

// RecordSinkWrite counts a result sink write.
func RecordSinkWrite(backend, status string) {
	globalManager.sinkWrites.WithLabelValues(backend, status).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Configure rebuilds the global collectors with opts on a fresh registry.
// Call it once at startup, before anything captures GetRegistry.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(reg)}, opts...)...)
	customRegistry = reg
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
