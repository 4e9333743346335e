// Package heuristics provides Prometheus metrics for rule evaluation.
package heuristics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts per-tenant cache reads.
	// Labels: result (hit, miss)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "heuristics",
			Name:      "cache_lookups_total",
			Help:      "Total number of heuristic cache lookups by result",
		},
		[]string{"result"},
	)

	// evaluationsTotal counts candidate-list evaluations.
	evaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "heuristics",
			Name:      "evaluations_total",
			Help:      "Total number of heuristic evaluations",
		},
	)

	// coverageObserved records the matched share per evaluation.
	coverageObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "intuition",
			Subsystem: "heuristics",
			Name:      "coverage",
			Help:      "Share of heuristics matched per evaluation",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// statUpdates counts outcome-driven stat mutations.
	statUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "heuristics",
			Name:      "stat_updates_total",
			Help:      "Total number of heuristic stat updates",
		},
	)
)
