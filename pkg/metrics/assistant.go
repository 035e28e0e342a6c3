package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Assistant outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeInvalid    = "invalid_input"
	OutcomeDependency = "dependency_error"
	OutcomeGeneration = "generation_failure"
)

// AssistantMetrics tracks the sales assistant pipeline.
type AssistantMetrics struct {
	generation  *prometheus.HistogramVec
	results     *prometheus.CounterVec
	contextRows *prometheus.HistogramVec
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	if reg == nil {
		return &AssistantMetrics{}
	}
	generation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assistant_generation_duration_seconds",
		Help:      "Latency of generation calls including the retry.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"model"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assistant_requests_total",
		Help:      "Assistant chat requests by outcome.",
	}, []string{"outcome"})
	contextRows := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assistant_context_rows",
		Help:      "Rows rendered into the prompt context.",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
	}, []string{"kind"})
	reg.MustRegister(generation, results, contextRows)
	return &AssistantMetrics{generation: generation, results: results, contextRows: contextRows}
}

func (m *AssistantMetrics) ObserveGeneration(model string, elapsed time.Duration) {
	if m == nil || m.generation == nil {
		return
	}
	m.generation.WithLabelValues(normalizeLabel(model)).Observe(elapsed.Seconds())
}

func (m *AssistantMetrics) IncResult(outcome string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveContext records how many products and clients went into a prompt.
func (m *AssistantMetrics) ObserveContext(products, clients int) {
	if m == nil || m.contextRows == nil {
		return
	}
	m.contextRows.WithLabelValues("products").Observe(float64(products))
	m.contextRows.WithLabelValues("clients").Observe(float64(clients))
}
