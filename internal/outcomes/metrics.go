// Package outcomes provides Prometheus metrics for outcome recording.
package outcomes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// outcomesRecorded counts recorded outcomes.
	// Labels: outcome (converted, rejected, abandoned, returned),
	// mode (fast, slow)
	outcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "outcomes",
			Name:      "recorded_total",
			Help:      "Total number of recommendation outcomes recorded",
		},
		[]string{"outcome", "mode"},
	)

	// revenueRecorded accumulates reported revenue.
	revenueRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "outcomes",
			Name:      "revenue_total",
			Help:      "Total revenue attributed to recorded outcomes",
		},
	)

	// statUpdateFailures counts heuristic stat updates that failed during
	// recording.
	statUpdateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "outcomes",
			Name:      "stat_update_failures_total",
			Help:      "Total number of failed heuristic stat updates",
		},
	)

	// evolutionRuns counts advisory evolution passes.
	evolutionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "outcomes",
			Name:      "evolution_runs_total",
			Help:      "Total number of heuristic evolution passes",
		},
	)
)
