// Package metrics holds the engine's Prometheus instrumentation. All
// metrics register against a caller-supplied registry so tests can use
// isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "strata"

// Metrics holds all Prometheus metrics for the tiering engine.
type Metrics struct {
	// Evaluation
	EvaluationsTotal *prometheus.CounterVec // outcome: eligible, ineligible
	QueueDepth       prometheus.Gauge

	// Execution
	ExecutionsTotal   *prometheus.CounterVec // action, status
	ExecutionDuration *prometheus.HistogramVec
	RetriesTotal      prometheus.Counter
	BytesFreedTotal   prometheus.Counter
	ActiveWorkers     prometheus.Gauge
	BusyPartitions    prometheus.Gauge

	// Consolidation
	MergesTotal *prometheus.CounterVec // status

	// Alerting
	AlertsTotal prometheus.Counter
}

// New creates and registers all metrics against reg. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluations_total",
			Help:      "Policy/partition evaluations by outcome",
		}, []string{"outcome"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "queue_depth",
			Help:      "Eligible entries awaiting execution",
		}),

		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Completed actions by type and status",
		}, []string{"action", "status"}),
		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Action execution time",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"action"}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "retries_total",
			Help:      "Actions requeued after a retryable failure",
		}),
		BytesFreedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "bytes_freed_total",
			Help:      "Bytes reclaimed by compression, drops and truncation",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "active_workers",
			Help:      "Workers currently executing actions",
		}),
		BusyPartitions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "busy_partitions",
			Help:      "Partitions with an action in flight",
		}),

		MergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Partition consolidations by status",
		}, []string{"status"}),

		AlertsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alerts_total",
			Help:      "Operator alerts fired",
		}),
	}
}
