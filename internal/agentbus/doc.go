// Package agentbus carries signals between specialized agents.
//
// Messages are durable documents addressed to one agent or to Broadcast,
// with per-agent reactions and a hard expiry. Agents poll
// GetPendingMessages for their backlog; an optional NATS notifier shortens
// pickup latency for live listeners but never replaces the durable copy, so
// delivery stays at-least-once even when the notifier is down.
package agentbus
