package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package engine provides Prometheus metrics for decision routing.
var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intuition",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Decisions made, labelled by the chosen mode.",
	}, []string{"mode"})

	scoreObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intuition",
		Subsystem: "engine",
		Name:      "confidence_score",
		Help:      "Distribution of computed confidence scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})
)
