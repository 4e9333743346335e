// Package memory maintains per-customer preference profiles derived from
// the event log.
//
// A profile is rebuilt by scanning the customer's recent events (capped at
// AggregationWindow) and tallying effect, format, and purchase signals into
// ranked preference lists. Rebuilds are idempotent upserts keyed by
// tenant and customer, so repeating one is harmless. Cluster assignment and
// similar-customer lookups place the profile among the tenant's pattern
// clusters.
//
// Reads degrade rather than fail: an unknown customer, an anonymous
// session, or a store error all produce the new-customer context, letting
// callers fall back to full reasoning instead of erroring out.
package memory
