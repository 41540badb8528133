package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient records cache operation metrics
type MetricsClient interface {
	// RecordCacheOperation records a single cache operation with its outcome
	// and duration in seconds.
	RecordCacheOperation(operation string, success bool, durationSeconds float64)
}

// PrometheusMetricsClient implements MetricsClient using Prometheus
type PrometheusMetricsClient struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsClient creates a Prometheus-backed metrics client and
// registers its collectors with the given registerer. Passing nil registers
// against the default registerer.
func NewPrometheusMetricsClient(namespace string, reg prometheus.Registerer) *PrometheusMetricsClient {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusMetricsClient{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total cache operations",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Cache operation duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(c.operations, c.durations)
	return c
}

// RecordCacheOperation records a cache operation
func (c *PrometheusMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.operations.WithLabelValues(operation, result).Inc()
	c.durations.WithLabelValues(operation).Observe(durationSeconds)
}
