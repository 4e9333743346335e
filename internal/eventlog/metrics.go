// Package eventlog provides Prometheus metrics for the batching writer.
package eventlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queueDepth tracks events waiting in the writer queue.
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intuition",
			Subsystem: "eventlog",
			Name:      "queue_depth",
			Help:      "Events currently queued for the next batch flush",
		},
	)

	// flushesTotal counts batch flushes.
	// Labels: reason (size, timer, drain)
	flushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "eventlog",
			Name:      "flushes_total",
			Help:      "Total number of batch flushes by trigger reason",
		},
		[]string{"reason"},
	)

	// flushFailures counts failed batch flushes.
	flushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "eventlog",
			Name:      "flush_failures_total",
			Help:      "Total number of batch flushes that failed",
		},
	)

	// batchSizeObserved records how full batches are at flush time.
	batchSizeObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "intuition",
			Subsystem: "eventlog",
			Name:      "batch_size",
			Help:      "Events per flushed batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// eventsArchived counts events removed by archival.
	eventsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "eventlog",
			Name:      "events_archived_total",
			Help:      "Total number of events deleted by retention archival",
		},
	)
)
