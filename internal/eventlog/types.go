package eventlog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Event types the memory aggregator understands. Agents may log other types;
// they are stored verbatim and ignored by aggregation.
const (
	TypeSessionStarted      = "session_started"
	TypeRecommendationShown = "recommendation_shown"
	TypeProductClick        = "product_click"
	TypePurchase            = "purchase"
	TypeFeedbackPositive    = "feedback_positive"
	TypeFeedbackNegative    = "feedback_negative"
)

// Payload keys the memory aggregator reads.
const (
	PayloadEffects   = "effects"    // []string
	PayloadFormat    = "format"     // string
	PayloadProductID = "product_id" // string
	PayloadTHC       = "thc"        // float64, percent
)

// Validation errors.
var (
	ErrMissingTenant = errors.New("event requires a tenant ID")
	ErrMissingAgent  = errors.New("event requires an agent ID")
	ErrMissingType   = errors.New("event requires a type")
)

// AgentEvent is one observation an agent logs: a click, a purchase, explicit
// feedback, or any other interaction worth learning from.
type AgentEvent struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	AgentID    string         `json:"agent_id"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`

	// SystemMode and ConfidenceScore echo the routing decision that led to
	// this interaction, when the caller has one.
	SystemMode      string  `json:"system_mode,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
	TraceID         string  `json:"trace_id,omitempty"`

	CreatedAt docstore.Timestamp `json:"created_at"`
}

// NewEvent creates an event with a generated ID and the current timestamp.
func NewEvent(tenantID, agentID, eventType string) AgentEvent {
	return AgentEvent{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Type:      eventType,
		CreatedAt: docstore.Now(),
	}
}

// Validate checks required fields and normalizes the optional ones.
// A missing ID is assigned; a missing CreatedAt is stamped now. Callers that
// supply their own ID get idempotent at-least-once delivery on resubmission.
func (e *AgentEvent) Validate() error {
	if err := tenant.ValidateID(e.TenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingTenant, err)
	}
	if e.AgentID == "" {
		return ErrMissingAgent
	}
	if e.Type == "" {
		return ErrMissingType
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = docstore.Now()
	}
	return nil
}

// PayloadString returns a string payload value, or "" when absent.
func (e *AgentEvent) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadFloat returns a numeric payload value. Both float64 (the JSON
// decode shape) and int are accepted.
func (e *AgentEvent) PayloadFloat(key string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// PayloadStrings returns a string-slice payload value. Both []string and
// []any (the JSON decode shape) are accepted.
func (e *AgentEvent) PayloadStrings(key string) []string {
	if e.Payload == nil {
		return nil
	}
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
