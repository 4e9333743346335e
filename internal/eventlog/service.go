package eventlog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// DefaultQueryLimit caps event pages when callers pass no limit.
const DefaultQueryLimit = 100

// DefaultArchiveLimit caps deletions per archival invocation. Callers re-run
// until the returned count is zero to drain a large backlog.
const DefaultArchiveLimit = 500

// EventQuery filters the event log. Zero-valued fields are ignored; the
// tenant filter is always applied by the service.
type EventQuery struct {
	AgentID    string
	Type       string
	SessionID  string
	CustomerID string
	Limit      int
	StartAfter string
}

// Service is the event log: buffered ingestion through the batching writer
// and advisory read queries that degrade to empty results on store failure.
type Service struct {
	store  docstore.Store
	writer *Writer
	logger *zap.Logger
}

// NewService creates the event log service and starts its writer.
func NewService(store docstore.Store, logger *zap.Logger, opts ...WriterOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer, err := NewWriter(store, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:  store,
		writer: writer,
		logger: logger.Named("eventlog"),
	}, nil
}

// Append logs one event, blocking until its batch is durably written.
// Returns the event ID.
func (s *Service) Append(ctx context.Context, event AgentEvent) (string, error) {
	return s.writer.Append(ctx, event)
}

// Close drains and stops the writer.
func (s *Service) Close(ctx context.Context) error {
	return s.writer.Close(ctx)
}

// Query returns events for a tenant, newest first. Store failures degrade to
// an empty slice: callers treat events as an advisory signal, so a failed
// read must not take down the caller's request path.
func (s *Service) Query(ctx context.Context, tenantID string, q EventQuery) ([]AgentEvent, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}

	filters := []docstore.Filter{
		{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
	}
	if q.AgentID != "" {
		filters = append(filters, docstore.Filter{Field: "agent_id", Op: docstore.OpEq, Value: q.AgentID})
	}
	if q.Type != "" {
		filters = append(filters, docstore.Filter{Field: "type", Op: docstore.OpEq, Value: q.Type})
	}
	if q.SessionID != "" {
		filters = append(filters, docstore.Filter{Field: "session_id", Op: docstore.OpEq, Value: q.SessionID})
	}
	if q.CustomerID != "" {
		filters = append(filters, docstore.Filter{Field: "customer_id", Op: docstore.OpEq, Value: q.CustomerID})
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	docs, err := s.store.Query(ctx, tenant.CollectionEvents, docstore.Query{
		Filters:    filters,
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
		StartAfter: q.StartAfter,
	})
	if err != nil {
		s.logger.Warn("event query failed, returning empty result",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return []AgentEvent{}, nil
	}

	events := make([]AgentEvent, 0, len(docs))
	for _, doc := range docs {
		var ev AgentEvent
		if err := docstore.Decode(doc, &ev); err != nil {
			s.logger.Warn("skipping undecodable event",
				zap.Any("id", doc["id"]),
				zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// CountSince returns how many events a tenant logged at or after since.
// Degrades to zero on store failure.
func (s *Service) CountSince(ctx context.Context, tenantID string, since time.Time) int {
	n, err := s.store.Count(ctx, tenant.CollectionEvents, []docstore.Filter{
		{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
		{Field: "created_at", Op: docstore.OpGte, Value: docstore.Timestamp(since)},
	})
	if err != nil {
		s.logger.Warn("event count failed, returning zero",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return 0
	}
	return n
}

// LatestEventTime returns the creation time of the tenant's newest event.
// The second return is false when the tenant has no events or the read fails.
func (s *Service) LatestEventTime(ctx context.Context, tenantID string) (time.Time, bool) {
	events, err := s.Query(ctx, tenantID, EventQuery{Limit: 1})
	if err != nil || len(events) == 0 {
		return time.Time{}, false
	}
	return events[0].CreatedAt.Time(), true
}

// ArchiveOlderThan deletes up to limit events created before cutoff and
// returns how many were removed. A return equal to limit means a backlog
// likely remains and the caller should invoke again.
func (s *Service) ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, limit int) (int, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = DefaultArchiveLimit
	}

	docs, err := s.store.Query(ctx, tenant.CollectionEvents, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			{Field: "created_at", Op: docstore.OpLt, Value: docstore.Timestamp(cutoff)},
		},
		OrderBy: "created_at",
		Limit:   limit,
	})
	if err != nil {
		return 0, fmt.Errorf("querying archivable events: %w", err)
	}

	deleted := 0
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := s.store.Delete(ctx, tenant.CollectionEvents, id); err != nil {
			return deleted, fmt.Errorf("deleting event %s: %w", id, err)
		}
		deleted++
	}

	if deleted > 0 {
		eventsArchived.Add(float64(deleted))
		s.logger.Info("archived events",
			zap.String("tenant_id", tenantID),
			zap.Int("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
