package outcomes

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leaflinelabs/intuition/internal/confidence"
	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Result is how a recommendation resolved.
type Result string

const (
	ResultConverted Result = "converted"
	ResultRejected  Result = "rejected"
	ResultAbandoned Result = "abandoned"
	ResultReturned  Result = "returned"
)

// Classification is the evolution verdict for one heuristic.
type Classification string

const (
	ClassKeep    Classification = "keep"
	ClassReview  Classification = "review"
	ClassDisable Classification = "disable"
)

// Classification thresholds.
const (
	DisableMinApplied = 50
	DisableMaxRate    = 0.20
	ReviewMinApplied  = 20
	ReviewMaxRate     = 0.30
)

// DefaultAnalysisWindow is the lookback for evolution and system
// performance when the caller passes none.
const DefaultAnalysisWindow = 24 * time.Hour

// Validation errors.
var (
	ErrMissingEvent   = errors.New("outcome requires an event ID")
	ErrMissingSession = errors.New("outcome requires a session ID")
	ErrInvalidResult  = errors.New("invalid outcome result")
	ErrInvalidMode    = errors.New("invalid system mode")
)

// Outcome records what happened after one recommendation was shown.
// Immutable once written; heuristic statistics are derived from these.
type Outcome struct {
	ID                  string             `json:"id"`
	TenantID            string             `json:"tenant_id"`
	EventID             string             `json:"event_id"`
	SessionID           string             `json:"session_id"`
	CustomerID          string             `json:"customer_id,omitempty"`
	RecommendedProducts []string           `json:"recommended_products,omitempty"`
	SelectedProduct     string             `json:"selected_product,omitempty"`
	Outcome             Result             `json:"outcome"`
	HeuristicsApplied   []string           `json:"heuristics_applied,omitempty"`
	SystemMode          confidence.Mode    `json:"system_mode"`
	ConfidenceScore     float64            `json:"confidence_score"`
	RevenueGenerated    float64            `json:"revenue_generated,omitempty"`
	CreatedAt           docstore.Timestamp `json:"created_at"`
}

// Validate checks required fields and fills defaults.
func (o *Outcome) Validate() error {
	if err := tenant.ValidateID(o.TenantID); err != nil {
		return err
	}
	if o.EventID == "" {
		return ErrMissingEvent
	}
	if o.SessionID == "" {
		return ErrMissingSession
	}
	switch o.Outcome {
	case ResultConverted, ResultRejected, ResultAbandoned, ResultReturned:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResult, o.Outcome)
	}
	switch o.SystemMode {
	case confidence.ModeFast, confidence.ModeSlow:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, o.SystemMode)
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = docstore.Now()
	}
	return nil
}

// Converted reports whether the outcome counts as a success for the
// heuristics that produced it.
func (o *Outcome) Converted() bool {
	return o.Outcome == ResultConverted
}

// Classify applies the evolution thresholds to one heuristic's window
// aggregate. Disable outranks review; anything else keeps.
func Classify(applied, success int) Classification {
	if applied == 0 {
		return ClassKeep
	}
	rate := float64(success) / float64(applied)
	switch {
	case applied >= DisableMinApplied && rate < DisableMaxRate:
		return ClassDisable
	case applied >= ReviewMinApplied && rate < ReviewMaxRate:
		return ClassReview
	default:
		return ClassKeep
	}
}

// HeuristicPerformance is one heuristic's aggregate over an analysis
// window.
type HeuristicPerformance struct {
	HeuristicID      string         `json:"heuristic_id"`
	Name             string         `json:"name,omitempty"`
	AppliedCount     int            `json:"applied_count"`
	SuccessCount     int            `json:"success_count"`
	SuccessRate      float64        `json:"success_rate"`
	RevenueGenerated float64        `json:"revenue_generated"`
	Classification   Classification `json:"classification"`
}

// PerformanceReport is the evolution analysis for one tenant.
type PerformanceReport struct {
	TenantID        string                 `json:"tenant_id"`
	Window          time.Duration          `json:"window"`
	OutcomesScanned int                    `json:"outcomes_scanned"`
	Heuristics      []HeuristicPerformance `json:"heuristics"`
	GeneratedAt     docstore.Timestamp     `json:"generated_at"`
}

// Counts tallies the report by classification.
func (r PerformanceReport) Counts() (keep, review, disable int) {
	for _, h := range r.Heuristics {
		switch h.Classification {
		case ClassReview:
			review++
		case ClassDisable:
			disable++
		default:
			keep++
		}
	}
	return keep, review, disable
}

// ModeStats summarizes one routing mode's share of an analysis window.
type ModeStats struct {
	Decisions      int     `json:"decisions"`
	Share          float64 `json:"share"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// SystemReport summarizes routing behavior over a window, feeding the
// dream-cycle readiness picture.
type SystemReport struct {
	TenantID      string             `json:"tenant_id"`
	Window        time.Duration      `json:"window"`
	TotalOutcomes int                `json:"total_outcomes"`
	Fast          ModeStats          `json:"fast"`
	Slow          ModeStats          `json:"slow"`
	OverallRate   float64            `json:"overall_conversion_rate"`
	AvgConfidence float64            `json:"avg_confidence"`
	TotalRevenue  float64            `json:"total_revenue"`
	GeneratedAt   docstore.Timestamp `json:"generated_at"`
}
