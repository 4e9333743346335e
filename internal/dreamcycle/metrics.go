// Package dreamcycle provides Prometheus metrics for the nightly cycle.
package dreamcycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cyclesCompleted counts finished per-tenant cycles, including ones with
	// failed steps.
	cyclesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "dreamcycle",
			Name:      "cycles_total",
			Help:      "Total number of completed per-tenant dream cycles",
		},
	)

	// stepFailures counts step failures.
	// Labels: step (consolidate_memory, discover_patterns, evolve_heuristics,
	// archive_events, cleanup_messages, system_performance, readiness)
	stepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "dreamcycle",
			Name:      "step_failures_total",
			Help:      "Total number of failed dream cycle steps",
		},
		[]string{"step"},
	)

	// cycleDuration observes how long one tenant cycle takes.
	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "intuition",
			Subsystem: "dreamcycle",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one per-tenant dream cycle",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	// readinessScore reports the latest readiness score per tenant.
	readinessScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "intuition",
			Subsystem: "dreamcycle",
			Name:      "readiness_score",
			Help:      "Latest readiness score computed for a tenant",
		},
		[]string{"tenant_id"},
	)

	// scheduledRuns counts cron-triggered global runs.
	scheduledRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "dreamcycle",
			Name:      "scheduled_runs_total",
			Help:      "Total number of cron-triggered global dream cycle runs",
		},
	)
)
