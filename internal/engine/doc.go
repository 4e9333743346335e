// Package engine is the decision facade the agent runtime calls. Decide
// assembles customer context, heuristic evaluation, and interaction history
// into a single confidence score and routes the request to the fast
// rule-based path or the slow full-reasoning path. RecordOutcome closes the
// loop so the nightly cycle can learn from what actually happened.
//
// Decide treats its collaborators as advisory: a missing profile, an empty
// rule set, or a degraded store read lowers confidence instead of failing
// the request.
package engine
