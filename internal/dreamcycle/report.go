package dreamcycle

import (
	"time"

	"github.com/leaflinelabs/intuition/internal/docstore"
)

// Step names, in execution order. One cycle runs all of them; a failing
// step is recorded and never aborts its siblings.
const (
	StepConsolidateMemory = "consolidate_memory"
	StepDiscoverPatterns  = "discover_patterns"
	StepEvolveHeuristics  = "evolve_heuristics"
	StepArchiveEvents     = "archive_events"
	StepCleanupMessages   = "cleanup_messages"
	StepSystemPerformance = "system_performance"
	StepReadiness         = "readiness"
)

// StepResult records one step of a tenant's cycle. Error holds the failure
// message and is empty on success; Detail carries step-specific counters
// (customers consolidated, events archived, and so on).
type StepResult struct {
	Name     string         `json:"name"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Failed reports whether the step recorded an error.
func (r StepResult) Failed() bool { return r.Error != "" }

// CycleReport is the outcome of one tenant's dream cycle.
type CycleReport struct {
	TenantID   string             `json:"tenant_id"`
	StartedAt  docstore.Timestamp `json:"started_at"`
	FinishedAt docstore.Timestamp `json:"finished_at"`
	Steps      []StepResult       `json:"steps"`
	Readiness  int                `json:"readiness"`
}

// FailedSteps returns the names of steps that recorded an error.
func (r CycleReport) FailedSteps() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Failed() {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Step returns the named step result, or false when the cycle has none.
func (r CycleReport) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
