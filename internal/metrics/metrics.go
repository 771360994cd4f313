// Package metrics provides Prometheus metrics for workflow executions and
// outbound document API calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutionBuckets covers workflow run durations, from sub-second script
// failures up to runs bounded by the default half-hour timeout.
var ExecutionBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

var (
	// ExecutionsTotal counts finalized workflow executions by outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Finalized workflow executions",
		},
		[]string{"status"},
	)

	// ExecutionDuration records workflow run duration in seconds by outcome.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_execution_duration_seconds",
			Help:    "Workflow execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"status"},
	)

	// APICallsTotal counts outbound document API calls by operation.
	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_api_calls_total",
			Help: "Outbound document API calls",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		APICallsTotal,
	)
}

// ObserveExecution records one finalized execution.
func ObserveExecution(status string, elapsed time.Duration) {
	ExecutionsTotal.WithLabelValues(status).Inc()
	ExecutionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveAPICall records one outbound document API call. Wired into the
// client as a call observer.
func ObserveAPICall(op string) {
	APICallsTotal.WithLabelValues(op).Inc()
}
