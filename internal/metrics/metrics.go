// Package metrics exposes prometheus collectors for plans, steps and model calls.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codemate"

type Metrics struct {
	Registry *prometheus.Registry

	steps            *prometheus.CounterVec
	plans            *prometheus.CounterVec
	corrections      *prometheus.CounterVec
	safetyRejections prometheus.Counter
	llmCalls         *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	taskDuration     prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed plan steps by kind and outcome.",
		}, []string{"kind", "success", "synthetic"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Plans built, by planner stage.",
		}, []string{"source"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Automatic code corrections by result.",
		}, []string{"result"}),
		safetyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_rejections_total",
			Help:      "Generated code discarded by the safety policy.",
		}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model calls by task type and outcome.",
		}, []string{"task_type", "success"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_seconds",
			Help:      "Model call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"task_type"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "End to end duration of one request.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.Registry.MustRegister(m.steps, m.plans, m.corrections, m.safetyRejections, m.llmCalls, m.llmLatency, m.taskDuration)
	return m
}

func (m *Metrics) StepFinished(kind string, success, synthetic bool) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(kind, strconv.FormatBool(success), strconv.FormatBool(synthetic)).Inc()
}

func (m *Metrics) PlanBuilt(source string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(source).Inc()
}

// Correction records one correction cycle by result (fixed, still_failing, no_code, save_failed).
func (m *Metrics) Correction(result string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(result).Inc()
}

func (m *Metrics) SafetyRejection() {
	if m == nil {
		return
	}
	m.safetyRejections.Inc()
}

// ObserveLLM has the signature of the llm gateway observer hook.
func (m *Metrics) ObserveLLM(taskType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(taskType, strconv.FormatBool(err == nil)).Inc()
	m.llmLatency.WithLabelValues(taskType).Observe(d.Seconds())
}

func (m *Metrics) TaskFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(d.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
