// Package starterpack provides Prometheus metrics for pack installs.
package starterpack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// packsApplied counts successful installs by archetype.
	packsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "starterpack",
			Name:      "applied_total",
			Help:      "Total number of starter packs applied by archetype",
		},
		[]string{"archetype"},
	)
)
