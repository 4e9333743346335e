// Package eventlog is the append-only log of agent interactions.
//
// Appends funnel through a single process-wide batching writer: callers
// block until their batch commits as one atomic multi-document write, and
// every caller in a batch shares that batch's outcome. Caller-supplied IDs
// upsert, giving at-least-once delivery with idempotent resubmission.
//
// Reads are advisory. Query failures degrade to empty results with a warning
// instead of propagating, so the decision path stays available when the
// store is not.
package eventlog
