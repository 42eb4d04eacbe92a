package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fortifit-backend/internal/shared"
)

// Outcome labels for stage and request counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ExecutionMetric records metadata for a single stage execution.
type ExecutionMetric struct {
	AgentName        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Attempts         int
	Success          bool
	Latency          time.Duration
}

// Recorder exports pipeline metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewRecorder registers the fortifit collectors plus the Go runtime and
// process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fortifit",
				Name:      "generation_attempts_total",
				Help:      "Upstream generation calls, retries included.",
			},
			[]string{"agent"},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fortifit",
				Name:      "stage_results_total",
				Help:      "Pipeline stage outcomes.",
			},
			[]string{"agent", "outcome"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fortifit",
				Name:      "tokens_total",
				Help:      "Tokens reported by the model.",
			},
			[]string{"agent", "kind"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fortifit",
				Name:      "stage_latency_seconds",
				Help:      "Stage latency including retries.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 240, 480},
			},
			[]string{"agent"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fortifit",
				Name:      "plan_requests_total",
				Help:      "Plan requests by result.",
			},
			[]string{"result"},
		),
	}
}

// Record adds one stage execution to the counters.
func (r *Recorder) Record(m ExecutionMetric) {
	r.attempts.WithLabelValues(m.AgentName).Add(float64(m.Attempts))
	outcome := OutcomeFailure
	if m.Success {
		outcome = OutcomeSuccess
	}
	r.results.WithLabelValues(m.AgentName, outcome).Inc()
	r.latency.WithLabelValues(m.AgentName).Observe(m.Latency.Seconds())

	if m.PromptTokens > 0 {
		r.tokens.WithLabelValues(m.AgentName, "prompt").Add(float64(m.PromptTokens))
	}
	if m.CompletionTokens > 0 {
		r.tokens.WithLabelValues(m.AgentName, "completion").Add(float64(m.CompletionTokens))
	}
}

// RecordMeta records metrics directly from shared.AgentMeta.
func (r *Recorder) RecordMeta(meta shared.AgentMeta) {
	r.Record(MapUsage(meta))
}

// RecordRequest counts a finished plan request. result is a short label
// such as "ok", "config_error", "stage1_error".
func (r *Recorder) RecordRequest(result string) {
	r.requests.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the registry for tests and embedding.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// MapUsage converts stage metadata into an ExecutionMetric.
func MapUsage(meta shared.AgentMeta) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        meta.AgentName,
		Model:            meta.Usage.Model,
		PromptTokens:     meta.Usage.PromptTokens,
		CompletionTokens: meta.Usage.CompletionTokens,
		Attempts:         meta.Attempts,
		Success:          meta.Success,
		Latency:          meta.Latency,
	}
}
