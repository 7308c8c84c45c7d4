package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts tracks operation attempts per operation name.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_retry_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"operation"},
	)

	// RetryExhausted tracks operations that failed all attempts.
	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"operation"},
	)

	// ErrorsClassified tracks classified errors by kind and severity.
	ErrorsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_errors_total",
			Help: "Total number of classified errors",
		},
		[]string{"kind", "severity"},
	)

	// StoreOps tracks persistent store operations by op and result.
	StoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_store_ops_total",
			Help: "Total number of persistent store operations",
		},
		[]string{"op", "result"},
	)

	// StoreOpLatency tracks persistent store operation latency.
	StoreOpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_store_op_seconds",
			Help:    "Persistent store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// AutosaveTicks tracks autosave scheduler ticks by result.
	AutosaveTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_autosave_ticks_total",
			Help: "Total number of autosave ticks",
		},
		[]string{"target", "result"},
	)

	// CriticalForwarded tracks deliveries to the monitoring endpoint.
	CriticalForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_critical_forwarded_total",
			Help: "Total number of critical records forwarded to monitoring",
		},
		[]string{"result"},
	)

	// RecoveryReplays tracks recovery replay outcomes by work type.
	RecoveryReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_recovery_replays_total",
			Help: "Total number of recovery replay attempts",
		},
		[]string{"work_type", "result"},
	)
)
