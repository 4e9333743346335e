// Package confidence scores how much the system trusts its cheap signals
// for one decision. Pure computation: callers gather the inputs, the scorer
// never touches a store or clock beyond the supplied reference time.
package confidence

import (
	"fmt"
	"math"
	"time"
)

// Factor weights. They sum to 1.0 so the composite stays in [0,1].
const (
	WeightRecency  = 0.15
	WeightDensity  = 0.25
	WeightCoverage = 0.20
	WeightPattern  = 0.25
	WeightAnomaly  = 0.15
)

// FastThreshold is the composite score at which the fast path takes over.
const FastThreshold = 0.6

// Explanation thresholds: factors under Weak are called out, factors under
// VeryWeak are called out urgently.
const (
	WeakFactor     = 0.5
	VeryWeakFactor = 0.3
)

// Mode is the routing decision derived from the score.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeSlow Mode = "slow"
)

// Inputs carries everything one scoring pass needs. Zero LastInteraction
// means the customer was never seen; zero Now means the current time.
// ClusterKnown and DeviationKnown distinguish a true zero from an absent
// signal.
type Inputs struct {
	LastInteraction   time.Time
	InteractionCount  int
	HeuristicsMatched int
	HeuristicsTotal   int
	ClusterConfidence float64
	ClusterKnown      bool
	SimilarCustomers  int
	IsAnomalous       bool
	Deviation         float64
	DeviationKnown    bool
	Now               time.Time
}

// Factors are the five named signals, each in [0,1].
type Factors struct {
	DataRecency       float64 `json:"data_recency"`
	DataDensity       float64 `json:"data_density"`
	HeuristicCoverage float64 `json:"heuristic_coverage"`
	PatternMatch      float64 `json:"pattern_match"`
	AnomalyScore      float64 `json:"anomaly_score"`
}

// Score is the composite result. Never persisted; computed per decision.
type Score struct {
	Score      float64 `json:"score"`
	Factors    Factors `json:"factors"`
	SystemMode Mode    `json:"system_mode"`
}

// Compute derives the five factors from the inputs, combines them with the
// fixed weights, rounds to two decimals, and picks the mode. The same
// inputs always produce the same score.
func Compute(in Inputs) Score {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	factors := Factors{
		DataRecency:       DataRecency(in.LastInteraction, now),
		DataDensity:       DataDensity(in.InteractionCount),
		HeuristicCoverage: HeuristicCoverage(in.HeuristicsMatched, in.HeuristicsTotal),
		PatternMatch:      PatternMatch(in.ClusterConfidence, in.ClusterKnown, in.SimilarCustomers),
		AnomalyScore:      AnomalyScore(in.IsAnomalous, in.Deviation, in.DeviationKnown),
	}

	composite := factors.DataRecency*WeightRecency +
		factors.DataDensity*WeightDensity +
		factors.HeuristicCoverage*WeightCoverage +
		factors.PatternMatch*WeightPattern +
		factors.AnomalyScore*WeightAnomaly

	score := Score{
		Score:   round2(composite),
		Factors: factors,
	}
	if score.Score >= FastThreshold {
		score.SystemMode = ModeFast
	} else {
		score.SystemMode = ModeSlow
	}
	return score
}

// DataRecency rewards recent interaction history. Zero when the customer
// was never seen.
func DataRecency(lastInteraction, now time.Time) float64 {
	if lastInteraction.IsZero() {
		return 0
	}
	switch age := now.Sub(lastInteraction); {
	case age < time.Hour:
		return 1
	case age < 24*time.Hour:
		return 0.9
	case age < 168*time.Hour:
		return 0.7
	case age < 720*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

// DataDensity rewards interaction volume.
func DataDensity(interactionCount int) float64 {
	switch {
	case interactionCount >= 50:
		return 1
	case interactionCount >= 20:
		return 0.8
	case interactionCount >= 10:
		return 0.6
	case interactionCount >= 3:
		return 0.4
	default:
		return 0.2
	}
}

// HeuristicCoverage is the matched share, capped at 1. Neutral 0.5 when the
// tenant has no heuristics at all, since zero rules is absence of signal,
// not evidence against the fast path.
func HeuristicCoverage(matched, total int) float64 {
	if total <= 0 {
		return 0.5
	}
	return math.Min(1, float64(matched)/float64(total))
}

// PatternMatch combines cluster placement confidence with a small bonus for
// similar customers, a fiftieth each up to 0.2. Unknown placement scores a
// conservative 0.3.
func PatternMatch(clusterConfidence float64, clusterKnown bool, similarCustomers int) float64 {
	if !clusterKnown {
		return 0.3
	}
	bonus := math.Min(0.2, float64(similarCustomers)/50)
	return math.Min(1, clusterConfidence+bonus)
}

// AnomalyScore is 1 for unremarkable sessions. Anomalous sessions decay
// linearly with the measured deviation, bottoming at 0; an anomaly without
// a measured deviation scores 0.5.
func AnomalyScore(isAnomalous bool, deviation float64, deviationKnown bool) float64 {
	if !isAnomalous {
		return 1
	}
	if !deviationKnown {
		return 0.5
	}
	return math.Max(0, 1-deviation/100)
}

// Explain lists the weak factors for operators debugging a routing
// decision. Advisory text only; never feeds back into scoring.
func Explain(s Score) []string {
	named := []struct {
		name  string
		value float64
	}{
		{"data recency", s.Factors.DataRecency},
		{"data density", s.Factors.DataDensity},
		{"heuristic coverage", s.Factors.HeuristicCoverage},
		{"pattern match", s.Factors.PatternMatch},
		{"anomaly score", s.Factors.AnomalyScore},
	}

	var notes []string
	for _, f := range named {
		switch {
		case f.value < VeryWeakFactor:
			notes = append(notes, fmt.Sprintf("%s is very weak (%.2f)", f.name, f.value))
		case f.value < WeakFactor:
			notes = append(notes, fmt.Sprintf("%s is weak (%.2f)", f.name, f.value))
		}
	}
	return notes
}

// round2 rounds half away from zero to two decimals, matching how scores
// are displayed and compared against the threshold.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
