// Package dreamcycle sequences nightly maintenance for each tenant: memory
// consolidation, pattern discovery, heuristic evolution, event archival,
// expired-message cleanup, a 24h system report, and a readiness score.
//
// Steps are isolated. A failing step is recorded in the CycleReport and the
// remaining steps still run; a failing tenant is logged and the global run
// moves on. A process-local single-flight guard rejects concurrent cycles
// for the same tenant with ErrCycleInProgress. Scheduler triggers the global
// run on a cron expression, nightly by default.
package dreamcycle
