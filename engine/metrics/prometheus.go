// Package metrics provides a Prometheus-backed engine.MetricsCollector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements engine.MetricsCollector by publishing
// three Prometheus instruments: a step duration histogram, a retry
// counter, and a compensation counter.
type PrometheusCollector struct {
	stepDuration     *prometheus.HistogramVec
	retryCount       *prometheus.CounterVec
	compensationRuns *prometheus.CounterVec
}

// NewPrometheusCollector registers its instruments against reg and returns
// the collector. Pass prometheus.DefaultRegisterer for the global registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sagaflow",
			Subsystem: "engine",
			Name:      "step_duration_milliseconds",
			Help:      "Duration of a single step attempt, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"step", "success"}),
		retryCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagaflow",
			Subsystem: "engine",
			Name:      "step_retries_total",
			Help:      "Number of retry attempts recorded per step.",
		}, []string{"step"}),
		compensationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagaflow",
			Subsystem: "engine",
			Name:      "compensations_total",
			Help:      "Number of compensation invocations, by outcome.",
		}, []string{"step", "success"}),
	}
	reg.MustRegister(c.stepDuration, c.retryCount, c.compensationRuns)
	return c
}

// RecordStepExecution implements engine.MetricsCollector.
func (c *PrometheusCollector) RecordStepExecution(name string, durationMS int64, success bool) {
	c.stepDuration.WithLabelValues(name, boolLabel(success)).Observe(float64(durationMS))
}

// RecordRetry implements engine.MetricsCollector.
func (c *PrometheusCollector) RecordRetry(name string, attempt int) {
	c.retryCount.WithLabelValues(name).Inc()
}

// RecordCompensation implements engine.MetricsCollector.
func (c *PrometheusCollector) RecordCompensation(name string, success bool) {
	c.compensationRuns.WithLabelValues(name, boolLabel(success)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
