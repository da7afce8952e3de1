package metrics

import (
	"net/http"
	"time"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ output.MetricsPort = (*Service)(nil)

// Service records loop metrics on its own registry.
type Service struct {
	registry *prometheus.Registry

	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	tokens       *prometheus.CounterVec

	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec

	runs       *prometheus.CounterVec
	iterations prometheus.Histogram
}

func NewService() *Service {
	s := &Service{
		registry: prometheus.NewRegistry(),

		modelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_model_calls_total",
				Help: "Total number of model calls",
			},
			[]string{"transport", "outcome"},
		),
		modelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentloop_model_latency_ms",
				Help:    "Model call latency in milliseconds, including stream aggregation",
				Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 20000, 60000},
			},
			[]string{"transport"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_tokens_total",
				Help: "Total number of tokens reported by model calls",
			},
			[]string{"transport", "direction"},
		),

		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_tool_calls_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "outcome"},
		),
		toolLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentloop_tool_latency_ms",
				Help:    "Tool execution latency in milliseconds",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 30000},
			},
			[]string{"tool"},
		),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_runs_total",
				Help: "Total number of loop runs by final status",
			},
			[]string{"status"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentloop_run_iterations",
				Help:    "Iterations used per run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 50},
			},
		),
	}

	s.registry.MustRegister(
		s.modelCalls,
		s.modelLatency,
		s.tokens,
		s.toolCalls,
		s.toolLatency,
		s.runs,
		s.iterations,
	)
	return s
}

func (s *Service) ObserveModelCall(transport string, elapsed time.Duration, usage entity.Usage, err error) {
	s.modelCalls.WithLabelValues(transport, outcome(err != nil)).Inc()
	s.modelLatency.WithLabelValues(transport).Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		return
	}
	s.tokens.WithLabelValues(transport, "input").Add(float64(usage.InputTokens))
	s.tokens.WithLabelValues(transport, "output").Add(float64(usage.OutputTokens))
}

func (s *Service) ObserveToolCall(tool string, elapsed time.Duration, failed bool) {
	s.toolCalls.WithLabelValues(tool, outcome(failed)).Inc()
	s.toolLatency.WithLabelValues(tool).Observe(float64(elapsed.Milliseconds()))
}

func (s *Service) ObserveRun(status entity.Status, iterations int) {
	s.runs.WithLabelValues(string(status)).Inc()
	s.iterations.Observe(float64(iterations))
}

func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
