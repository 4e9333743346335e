// Package heuristics implements the rule engine behind the fast path.
//
// A heuristic is a prioritized condition/action rule scoped to one tenant
// and agent. Conditions resolve dotted paths against an EvalContext built
// from the customer's memory profile and the caller's session attributes;
// when all hold, the action transforms the candidate list. Filter and block
// shrink the list, boost and bury rescore it, and the message actions emit
// side-channel directives without touching it.
//
// Enabled heuristics are read through a per-tenant TTL cache. Writes
// invalidate the owning tenant's entry; other processes converge within the
// TTL. Stat updates happen inside a single store mutation so concurrent
// outcomes referencing the same heuristic cannot lose increments.
package heuristics
