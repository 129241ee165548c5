// Package metrics holds the Prometheus collectors for evaluations and
// payroll runs. Every method is nil-safe so tests and tools can pass a
// nil *Metrics.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Payroll run outcomes.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Config sets the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures evaluation and payroll health signals.
type Metrics struct {
	registry *prometheus.Registry

	evaluations      *prometheus.CounterVec
	evaluationTime   *prometheus.HistogramVec
	evaluationErrors *prometheus.CounterVec
	remoteFallbacks  prometheus.Counter
	warnings         *prometheus.CounterVec
	payrollRuns      *prometheus.CounterVec
	payrollAdvisors  *prometheus.CounterVec
	payrollDuration  prometheus.Observer
}

// New builds the collectors on a dedicated registry that also carries
// the Go runtime and process collectors.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(registry, cfg)
}

func newMetrics(registry *prometheus.Registry, cfg Config) *Metrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "commission-engine"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commission_evaluations_total",
		Help:        "Scheme evaluations by the evaluator that produced them.",
		ConstLabels: constLabels,
	}, []string{"source", "estimate"})
	evaluationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "commission_evaluation_duration_seconds",
		Help:        "Evaluation latency including input resolution.",
		Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"source"})
	evaluationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commission_evaluation_errors_total",
		Help:        "Evaluations that could not produce a result.",
		ConstLabels: constLabels,
	}, []string{"source"})
	remoteFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "commission_remote_fallbacks_total",
		Help:        "Simulations answered locally because the remote evaluator failed.",
		ConstLabels: constLabels,
	})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commission_evaluation_warnings_total",
		Help:        "Skipped scheme configuration by warning code.",
		ConstLabels: constLabels,
	}, []string{"code"})
	payrollRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commission_payroll_runs_total",
		Help:        "Payroll runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	payrollAdvisors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commission_payroll_advisors_total",
		Help:        "Advisors processed by payroll runs.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	payrollDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "commission_payroll_run_duration_seconds",
		Help:        "Wall time of a full payroll run.",
		Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	})

	registry.MustRegister(
		evaluations,
		evaluationTime,
		evaluationErrors,
		remoteFallbacks,
		warnings,
		payrollRuns,
		payrollAdvisors,
		payrollDuration,
	)

	return &Metrics{
		registry:         registry,
		evaluations:      evaluations,
		evaluationTime:   evaluationTime,
		evaluationErrors: evaluationErrors,
		remoteFallbacks:  remoteFallbacks,
		warnings:         warnings,
		payrollRuns:      payrollRuns,
		payrollAdvisors:  payrollAdvisors,
		payrollDuration:  payrollDuration,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvaluation counts one successful evaluation and its latency.
func (m *Metrics) ObserveEvaluation(source string, estimate bool, d time.Duration) {
	if m == nil {
		return
	}
	est := "false"
	if estimate {
		est = "true"
	}
	m.evaluations.WithLabelValues(source, est).Inc()
	m.evaluationTime.WithLabelValues(source).Observe(d.Seconds())
}

// IncEvaluationError counts an evaluation that returned an error.
func (m *Metrics) IncEvaluationError(source string) {
	if m == nil {
		return
	}
	m.evaluationErrors.WithLabelValues(source).Inc()
}

// IncRemoteFallback counts a remote failure answered locally.
func (m *Metrics) IncRemoteFallback() {
	if m == nil {
		return
	}
	m.remoteFallbacks.Inc()
}

// AddWarning counts a skipped configuration entry.
func (m *Metrics) AddWarning(code string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(code).Inc()
}

// ObservePayrollRun records a finished payroll run.
func (m *Metrics) ObservePayrollRun(outcome string, completed, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.payrollRuns.WithLabelValues(outcome).Inc()
	m.payrollAdvisors.WithLabelValues(RunCompleted).Add(float64(completed))
	m.payrollAdvisors.WithLabelValues(RunFailed).Add(float64(failed))
	m.payrollDuration.Observe(d.Seconds())
}
