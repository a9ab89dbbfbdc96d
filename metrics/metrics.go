// Package metrics wraps the Prometheus collectors the pipeline emits.
// A Metrics value is constructed explicitly per embedding process and
// passed to whatever needs to record against it; the core never
// reaches for global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// defaultDurationBuckets covers phase/frame durations from sub-millisecond
// frame checks up to a multi-minute repository-scope frame.
var defaultDurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// Metrics wraps the prometheus collectors for one embedding process.
type Metrics struct {
	registry *prometheus.Registry

	pipelinesTotal   *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec

	phaseDuration *prometheus.HistogramVec

	frameExecutionsTotal *prometheus.CounterVec
	frameDuration        *prometheus.HistogramVec

	findingsTotal *prometheus.CounterVec

	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	llmCallsTotal       *prometheus.CounterVec
	llmCircuitState     prometheus.Gauge
}

// New constructs and registers a Metrics instance against a fresh
// Prometheus registry scoped to namespace (e.g. "wardencore").
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		pipelinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipelines_total",
				Help:      "Total pipeline executions by terminal status",
			},
			[]string{"status"},
		),

		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_milliseconds",
				Help:      "Duration of a full pipeline execution in milliseconds",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"status"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_milliseconds",
				Help:      "Duration of one pipeline phase in milliseconds",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"phase"},
		),

		frameExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frame_executions_total",
				Help:      "Total frame executions by frame id and outcome status",
			},
			[]string{"frame_id", "status"},
		),

		frameDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_milliseconds",
				Help:      "Duration of one frame execution in milliseconds",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"frame_id", "scope"},
		),

		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total findings emitted by severity",
			},
			[]string{"severity"},
		),

		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_cache_hits_total",
				Help:      "Total repository-scope cache hits",
			},
		),

		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_cache_misses_total",
				Help:      "Total repository-scope cache misses",
			},
		),

		llmCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total LLM verification calls by outcome",
			},
			[]string{"outcome"},
		),

		llmCircuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "llm_circuit_state",
				Help:      "Current LLM circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
		),
	}

	registry.MustRegister(
		m.pipelinesTotal,
		m.pipelineDuration,
		m.phaseDuration,
		m.frameExecutionsTotal,
		m.frameDuration,
		m.findingsTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.llmCallsTotal,
		m.llmCircuitState,
	)

	return m
}

// Registry exposes the underlying registry for an embedder to mount a
// /metrics HTTP handler (via promhttp.HandlerFor), which is outside
// this package's scope.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPipeline records one completed pipeline execution.
func (m *Metrics) RecordPipeline(status string, durationMS int64) {
	m.pipelinesTotal.WithLabelValues(status).Inc()
	m.pipelineDuration.WithLabelValues(status).Observe(float64(durationMS))
}

// RecordPhase records one phase's duration.
func (m *Metrics) RecordPhase(phase string, durationMS int64) {
	m.phaseDuration.WithLabelValues(phase).Observe(float64(durationMS))
}

// RecordFrame records one frame execution's outcome and duration.
func (m *Metrics) RecordFrame(frameID, status, scope string, durationMS int64) {
	m.frameExecutionsTotal.WithLabelValues(frameID, status).Inc()
	m.frameDuration.WithLabelValues(frameID, scope).Observe(float64(durationMS))
}

// RecordFindings records a batch of findings by severity.
func (m *Metrics) RecordFindings(bySeverity map[string]int) {
	for severity, count := range bySeverity {
		m.findingsTotal.WithLabelValues(severity).Add(float64(count))
	}
}

// RecordCacheHit records a repository-scope cache hit.
func (m *Metrics) RecordCacheHit() { m.cacheHitsTotal.Inc() }

// RecordCacheMiss records a repository-scope cache miss.
func (m *Metrics) RecordCacheMiss() { m.cacheMissesTotal.Inc() }

// RecordLLMCall records one LLM verification call's outcome
// ("success", "retry_exhausted", "breaker_open", "unavailable").
func (m *Metrics) RecordLLMCall(outcome string) {
	m.llmCallsTotal.WithLabelValues(outcome).Inc()
}

// SetLLMCircuitState reports the current breaker state.
func (m *Metrics) SetLLMCircuitState(state int) {
	m.llmCircuitState.Set(float64(state))
}
