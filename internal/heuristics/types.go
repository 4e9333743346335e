package heuristics

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Source records how a heuristic came to exist.
type Source string

const (
	SourceStarter Source = "starter"
	SourceLearned Source = "learned"
	SourceManual  Source = "manual"
)

// Operator is a comparison used by conditions and filter actions.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpIn       Operator = "in"
	OpNin      Operator = "nin"
	OpContains Operator = "contains"
)

// ActionType names what a matched heuristic does to the candidate list.
type ActionType string

const (
	ActionFilter ActionType = "filter"
	ActionBoost  ActionType = "boost"
	ActionBury   ActionType = "bury"
	ActionBlock  ActionType = "block"

	// Directive actions leave the candidate list untouched and surface on
	// the evaluation result instead.
	ActionMessagePrepend ActionType = "message_prepend"
	ActionMessageAppend  ActionType = "message_append"
	ActionWarn           ActionType = "warn"
	ActionTag            ActionType = "tag"
)

// Score multipliers used when an action does not carry its own.
const (
	DefaultBoostMultiplier = 1.1
	DefaultBuryMultiplier  = 0.5
)

// Validation errors.
var (
	ErrMissingAgent    = errors.New("heuristic requires an agent")
	ErrMissingName     = errors.New("heuristic requires a name")
	ErrInvalidOperator = errors.New("invalid operator")
	ErrInvalidAction   = errors.New("invalid action type")
	ErrNotFound        = errors.New("heuristic not found")
)

// Condition is one predicate over the evaluation context. Target is a
// dotted path such as "customer.is_new" or "session.time_of_day".
type Condition struct {
	Target   string   `json:"target"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Action is what happens to candidate items when all conditions hold.
// Target names an item field; Operator and Value drive filter predicates
// and equality matches; Multiplier overrides the boost or bury default;
// Message carries directive text.
type Action struct {
	Type       ActionType `json:"type"`
	Target     string     `json:"target,omitempty"`
	Operator   Operator   `json:"operator,omitempty"`
	Value      any        `json:"value,omitempty"`
	Multiplier float64    `json:"multiplier,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Stats tracks how a heuristic performs against recorded outcomes.
// SuccessRate always equals SuccessCount/AppliedCount, zero when nothing
// was applied yet.
type Stats struct {
	AppliedCount    int                `json:"applied_count"`
	SuccessCount    int                `json:"success_count"`
	SuccessRate     float64            `json:"success_rate"`
	LastEvaluatedAt docstore.Timestamp `json:"last_evaluated_at"`
}

// Heuristic is a prioritized condition/action rule scoped to one tenant and
// agent. All conditions must hold (AND) for the action to apply; a
// heuristic with no conditions always applies.
type Heuristic struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenant_id"`
	Agent      string             `json:"agent"`
	Name       string             `json:"name"`
	Enabled    bool               `json:"enabled"`
	Priority   int                `json:"priority"`
	Conditions []Condition        `json:"conditions,omitempty"`
	Action     Action             `json:"action"`
	Stats      Stats              `json:"stats"`
	Source     Source             `json:"source"`
	CreatedAt  docstore.Timestamp `json:"created_at"`
	UpdatedAt  docstore.Timestamp `json:"updated_at"`
}

// New creates an enabled heuristic with a generated ID and current
// timestamps.
func New(tenantID, agent, name string) Heuristic {
	now := docstore.Now()
	return Heuristic{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Agent:     agent,
		Name:      name,
		Enabled:   true,
		Source:    SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields, operators, and the action type, filling
// defaults for ID, source, and creation time.
func (h *Heuristic) Validate() error {
	if err := tenant.ValidateID(h.TenantID); err != nil {
		return err
	}
	if h.Agent == "" {
		return ErrMissingAgent
	}
	if h.Name == "" {
		return ErrMissingName
	}
	for _, c := range h.Conditions {
		if !validOperator(c.Operator) {
			return fmt.Errorf("condition %q: %w: %q", c.Target, ErrInvalidOperator, c.Operator)
		}
	}
	switch h.Action.Type {
	case ActionFilter:
		if !validOperator(h.Action.Operator) {
			return fmt.Errorf("filter action: %w: %q", ErrInvalidOperator, h.Action.Operator)
		}
	case ActionBoost, ActionBury, ActionBlock,
		ActionMessagePrepend, ActionMessageAppend, ActionWarn, ActionTag:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, h.Action.Type)
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Source == "" {
		h.Source = SourceManual
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = docstore.Now()
	}
	return nil
}

func validOperator(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIn, OpNin, OpContains:
		return true
	default:
		return false
	}
}

// multiplier returns the action's score multiplier, falling back to the
// boost or bury default.
func (a Action) multiplier() float64 {
	if a.Multiplier > 0 {
		return a.Multiplier
	}
	if a.Type == ActionBury {
		return DefaultBuryMultiplier
	}
	return DefaultBoostMultiplier
}
