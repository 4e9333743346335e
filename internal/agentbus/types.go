package agentbus

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Broadcast is the recipient meaning every agent of the tenant.
const Broadcast = "broadcast"

// DefaultExpiry is applied when a message carries no expiry of its own.
// Call sites with longer- or shorter-lived signals set ExpiresAt directly.
const DefaultExpiry = 24 * time.Hour

// Validation and lookup errors.
var (
	ErrMissingFrom  = errors.New("message requires a sending agent")
	ErrMissingTopic = errors.New("message requires a topic")
	ErrMissingAgent = errors.New("agent is required")
	ErrNotFound     = errors.New("message not found")
)

// Reaction is one agent's acknowledgement of a message.
type Reaction struct {
	Acknowledged bool               `json:"acknowledged"`
	ActionTaken  string             `json:"action_taken,omitempty"`
	Timestamp    docstore.Timestamp `json:"timestamp"`
}

// AgentMessage is a persisted signal from one agent to a specific peer or to
// Broadcast. Reactions record which agents have handled it; messages past
// ExpiresAt are invisible to readers and eventually deleted by
// CleanupExpired.
type AgentMessage struct {
	ID                string              `json:"id"`
	TenantID          string              `json:"tenant_id"`
	FromAgent         string              `json:"from_agent"`
	ToAgent           string              `json:"to_agent"`
	Topic             string              `json:"topic"`
	Payload           map[string]any      `json:"payload,omitempty"`
	RequiredReactions []string            `json:"required_reactions,omitempty"`
	Reactions         map[string]Reaction `json:"reactions,omitempty"`
	ExpiresAt         docstore.Timestamp  `json:"expires_at"`
	CreatedAt         docstore.Timestamp  `json:"created_at"`
}

// New creates a message from fromAgent to toAgent (Broadcast when empty)
// with a generated ID and the default expiry.
func New(tenantID, fromAgent, toAgent, topic string) AgentMessage {
	if toAgent == "" {
		toAgent = Broadcast
	}
	now := time.Now().UTC()
	return AgentMessage{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Topic:     topic,
		ExpiresAt: docstore.Timestamp(now.Add(DefaultExpiry)),
		CreatedAt: docstore.Timestamp(now),
	}
}

// Validate checks required fields, filling the ID, recipient, creation time,
// and expiry defaults.
func (m *AgentMessage) Validate() error {
	if err := tenant.ValidateID(m.TenantID); err != nil {
		return err
	}
	if m.FromAgent == "" {
		return ErrMissingFrom
	}
	if m.Topic == "" {
		return ErrMissingTopic
	}
	if m.ToAgent == "" {
		m.ToAgent = Broadcast
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = docstore.Now()
	}
	if m.ExpiresAt.IsZero() {
		m.ExpiresAt = docstore.Timestamp(m.CreatedAt.Time().Add(DefaultExpiry))
	}
	return nil
}

// Expired reports whether the message is past its expiry at now.
func (m *AgentMessage) Expired(now time.Time) bool {
	return !m.ExpiresAt.Time().After(now)
}

// ReactedBy reports whether agent has already recorded a reaction.
func (m *AgentMessage) ReactedBy(agent string) bool {
	_, ok := m.Reactions[agent]
	return ok
}

// RequiresReactionFrom reports whether agent is listed as a required
// reactor.
func (m *AgentMessage) RequiresReactionFrom(agent string) bool {
	for _, a := range m.RequiredReactions {
		if a == agent {
			return true
		}
	}
	return false
}
