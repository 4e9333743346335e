// Package agentbus provides Prometheus metrics for message flow.
package agentbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesSent counts publishes by recipient type.
	// Labels: recipient (direct, broadcast)
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "agentbus",
			Name:      "messages_sent_total",
			Help:      "Total number of agent messages sent by recipient type",
		},
		[]string{"recipient"},
	)

	// reactionsRecorded counts reaction upserts.
	reactionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "agentbus",
			Name:      "reactions_recorded_total",
			Help:      "Total number of message reactions recorded",
		},
	)

	// pendingLookups counts pending-message reads.
	// Labels: result (ok, degraded)
	pendingLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "agentbus",
			Name:      "pending_lookups_total",
			Help:      "Total number of pending message lookups by result",
		},
		[]string{"result"},
	)

	// messagesExpired counts deletions by CleanupExpired.
	messagesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "agentbus",
			Name:      "messages_expired_total",
			Help:      "Total number of messages deleted after expiry",
		},
	)

	// notifyFailures counts best-effort notification errors.
	notifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intuition",
			Subsystem: "agentbus",
			Name:      "notify_failures_total",
			Help:      "Total number of failed realtime notifications",
		},
	)
)
