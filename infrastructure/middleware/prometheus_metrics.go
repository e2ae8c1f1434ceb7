// Package middleware provides cross-cutting concerns for the sampling
// pipeline.
package middleware

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-bestof/infrastructure/llm"
	"github.com/ahrav/go-bestof/internal/ports"
)

const namespace = "bestof"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It covers completion requests issued through the LLM client as well as
// generation tasks and judge calls.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	llmLatency       *prometheus.HistogramVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance whose metrics are
// registered in reg. A nil reg gets a fresh registry, which keeps tests and
// repeated runs free of duplicate registration panics.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      llm.MetricRequestLatency,
				Help:      "Latency of completion requests.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"provider", "model", "status"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      llm.MetricRequests,
				Help:      "Completion requests by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      llm.MetricTokens,
				Help:      "Tokens consumed by completion requests.",
			},
			[]string{"provider", "model", "token_type"},
		),

		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of generation tasks, batches and rankings.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "model", "status"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Pipeline operations by outcome.",
			},
			[]string{"operation", "model", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_state",
				Help:      "Current pipeline state values.",
			},
			[]string{"metric", "model"},
		),
	}
}

// Registry returns the registry holding every metric of this collector.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// RecordLatency records the duration of a pipeline operation.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(
		operation,
		labelOr(labels, "model", "unknown"),
		labelOr(labels, "status", "success"),
	).Observe(duration.Seconds())
}

// RecordCounter increments the counter that matches metric. Names the
// collector does not know are counted as pipeline operations.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricRequests:
		pm.llmRequests.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Add(value)
	case llm.MetricTokens:
		pm.llmTokens.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "token_type", "unknown"),
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(
			metric,
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "status", "success"),
		).Add(value)
	}
}

// RecordGauge sets a pipeline state gauge.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric, labelOr(labels, "model", "unknown")).Set(value)
}

// RecordHistogram records value in the histogram that matches metric.
// Unknown names are treated as operation durations in seconds.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	if metric == llm.MetricRequestLatency {
		pm.llmLatency.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Observe(value)
		return
	}
	pm.operationLatency.WithLabelValues(
		metric,
		labelOr(labels, "model", "unknown"),
		labelOr(labels, "status", "success"),
	).Observe(value)
}

// WriteTextfile writes every metric to path in the Prometheus text format,
// suitable for the node exporter's textfile collector.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
