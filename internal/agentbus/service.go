package agentbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Service persists and serves inter-agent messages.
//
// The pending-message query shape is chosen once at construction from the
// store's capabilities: stores with composite filter support push recipient,
// tenant, and expiry into the query; others fetch by recipient alone and
// leave the rest to the in-memory pass. Every predicate is re-applied here
// either way, so both strategies return identical pending sets.
type Service struct {
	store     docstore.Store
	notifier  Notifier
	logger    *zap.Logger
	composite bool
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes every send through n. Notification failures are
// logged and counted, never returned; polling remains the delivery path.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a message bus backed by store.
func NewService(store docstore.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		logger:    logger.Named("agentbus"),
		composite: store.Capabilities().CompositeFilters,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendAgentMessage persists the message and, when a notifier is configured,
// fans it out to live listeners.
func (s *Service) SendAgentMessage(ctx context.Context, msg AgentMessage) (AgentMessage, error) {
	if err := msg.Validate(); err != nil {
		return AgentMessage{}, fmt.Errorf("validating message: %w", err)
	}
	doc, err := docstore.Encode(msg)
	if err != nil {
		return AgentMessage{}, fmt.Errorf("encoding message: %w", err)
	}
	if err := s.store.Put(ctx, tenant.CollectionMessages, msg.ID, doc); err != nil {
		return AgentMessage{}, fmt.Errorf("storing message: %w", err)
	}

	messagesSent.WithLabelValues(recipientType(msg.ToAgent)).Inc()
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, msg); err != nil {
			notifyFailures.Inc()
			s.logger.Warn("message notification failed",
				zap.String("tenant_id", msg.TenantID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
		}
	}
	s.logger.Debug("agent message sent",
		zap.String("tenant_id", msg.TenantID),
		zap.String("from", msg.FromAgent),
		zap.String("to", msg.ToAgent),
		zap.String("topic", msg.Topic))
	return msg, nil
}

// RecordReaction upserts agent's reaction on the message. A zero reaction
// timestamp is filled with the current time.
func (s *Service) RecordReaction(ctx context.Context, id, agent string, reaction Reaction) error {
	if agent == "" {
		return ErrMissingAgent
	}
	if reaction.Timestamp.IsZero() {
		reaction.Timestamp = docstore.Now()
	}

	err := s.store.Mutate(ctx, tenant.CollectionMessages, id, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		var msg AgentMessage
		if err := docstore.Decode(doc, &msg); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		if msg.Reactions == nil {
			msg.Reactions = make(map[string]Reaction, 1)
		}
		msg.Reactions[agent] = reaction
		return docstore.Encode(msg)
	})
	if err != nil {
		return fmt.Errorf("recording reaction: %w", err)
	}
	reactionsRecorded.Inc()
	return nil
}

// GetPendingMessages returns unexpired messages addressed to agent or to
// Broadcast that agent has not reacted to, oldest first. Read failures
// degrade to an empty slice with a warning.
func (s *Service) GetPendingMessages(ctx context.Context, tenantID, agent string) ([]AgentMessage, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if agent == "" {
		return nil, ErrMissingAgent
	}

	recipients := []string{agent, Broadcast}
	if agent == Broadcast {
		recipients = recipients[:1]
	}

	now := time.Now()
	var pending []AgentMessage
	for _, recipient := range recipients {
		docs, err := s.fetchForRecipient(ctx, tenantID, recipient, now)
		if err != nil {
			pendingLookups.WithLabelValues("degraded").Inc()
			s.logger.Warn("pending message scan failed, returning empty",
				zap.String("tenant_id", tenantID),
				zap.String("agent", agent),
				zap.Error(err))
			return []AgentMessage{}, nil
		}
		for _, doc := range docs {
			var msg AgentMessage
			if err := docstore.Decode(doc, &msg); err != nil {
				s.logger.Warn("skipping undecodable message", zap.Any("id", doc["id"]), zap.Error(err))
				continue
			}
			if msg.TenantID != tenantID || msg.Expired(now) || msg.ReactedBy(agent) {
				continue
			}
			pending = append(pending, msg)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i].CreatedAt.Time(), pending[j].CreatedAt.Time()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return pending[i].ID < pending[j].ID
	})
	pendingLookups.WithLabelValues("ok").Inc()
	return pending, nil
}

// GetMessagesRequiringReaction narrows the pending set to messages that
// list agent as a required reactor.
func (s *Service) GetMessagesRequiringReaction(ctx context.Context, tenantID, agent string) ([]AgentMessage, error) {
	pending, err := s.GetPendingMessages(ctx, tenantID, agent)
	if err != nil {
		return nil, err
	}
	var required []AgentMessage
	for _, msg := range pending {
		if msg.RequiresReactionFrom(agent) {
			required = append(required, msg)
		}
	}
	return required, nil
}

// CleanupExpired deletes the tenant's messages past their expiry and
// returns how many were removed. Run during the nightly cycle.
func (s *Service) CleanupExpired(ctx context.Context, tenantID string) (int, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return 0, err
	}

	now := time.Now()
	filters := []docstore.Filter{
		{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
	}
	if s.composite {
		filters = append(filters,
			docstore.Filter{Field: "expires_at", Op: docstore.OpLte, Value: docstore.Timestamp(now)})
	}
	docs, err := s.store.Query(ctx, tenant.CollectionMessages, docstore.Query{
		Filters: filters,
		OrderBy: "expires_at",
	})
	if err != nil {
		return 0, fmt.Errorf("scanning expired messages: %w", err)
	}

	deleted := 0
	for _, doc := range docs {
		var msg AgentMessage
		if err := docstore.Decode(doc, &msg); err != nil {
			s.logger.Warn("skipping undecodable message", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		if !msg.Expired(now) {
			continue
		}
		if err := s.store.Delete(ctx, tenant.CollectionMessages, msg.ID); err != nil {
			return deleted, fmt.Errorf("deleting message %s: %w", msg.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		messagesExpired.Add(float64(deleted))
		s.logger.Info("expired messages cleaned",
			zap.String("tenant_id", tenantID),
			zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// fetchForRecipient issues the store query for one recipient using the
// strategy probed at construction.
func (s *Service) fetchForRecipient(ctx context.Context, tenantID, recipient string, now time.Time) ([]docstore.Document, error) {
	filters := []docstore.Filter{
		{Field: "to_agent", Op: docstore.OpEq, Value: recipient},
	}
	if s.composite {
		filters = append(filters,
			docstore.Filter{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			docstore.Filter{Field: "expires_at", Op: docstore.OpGt, Value: docstore.Timestamp(now)},
		)
	}
	return s.store.Query(ctx, tenant.CollectionMessages, docstore.Query{
		Filters: filters,
		OrderBy: "created_at",
	})
}

func recipientType(toAgent string) string {
	if toAgent == Broadcast {
		return Broadcast
	}
	return "direct"
}
