// Package docstore provides collection-scoped document storage.
//
// Two implementations ship: MemoryStore (tests, single-node development) and
// SQLiteStore (production, modernc.org/sqlite). Both guarantee idempotent
// upserts, atomic batches, and an atomic Mutate primitive for
// read-modify-write cycles such as counter updates.
//
// Tenant isolation is payload-based: every document carries tenant_id and
// every service-level query filters on it. Capabilities lets callers probe
// query support once at construction instead of interpreting per-request
// errors.
package docstore
