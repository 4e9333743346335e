// Package memory provides Prometheus metrics for profile maintenance.
package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// profilesRebuilt counts full profile rebuilds from the event log.
	profilesRebuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "memory",
			Name:      "profiles_rebuilt_total",
			Help:      "Total number of customer profiles rebuilt from events",
		},
	)

	// clusterAssignments counts label writes from cluster assignment.
	clusterAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "memory",
			Name:      "cluster_assignments_total",
			Help:      "Total number of cluster label assignments written",
		},
	)

	// contextLookups counts customer context reads.
	// Labels: result (known, new)
	contextLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "memory",
			Name:      "context_lookups_total",
			Help:      "Total number of customer context lookups by result",
		},
		[]string{"result"},
	)
)
