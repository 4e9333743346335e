package heuristics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

const tracerName = "github.com/leaflinelabs/intuition/internal/heuristics"

// Service stores, caches, and evaluates heuristics.
type Service struct {
	store  docstore.Store
	cache  Cache
	logger *zap.Logger
	tracer trace.Tracer
}

// Option configures the service.
type Option func(*Service)

// WithCache swaps the default process-local TTL cache.
func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// NewService creates a heuristics service.
func NewService(store docstore.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		cache:  NewTTLCache(DefaultCacheSize, DefaultCacheTTL),
		logger: logger.Named("heuristics"),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates and persists a heuristic, invalidating the tenant's
// cache entry.
func (s *Service) Create(ctx context.Context, h Heuristic) (Heuristic, error) {
	if err := h.Validate(); err != nil {
		return Heuristic{}, fmt.Errorf("validating heuristic: %w", err)
	}
	h.UpdatedAt = docstore.Now()
	doc, err := docstore.Encode(h)
	if err != nil {
		return Heuristic{}, fmt.Errorf("encoding heuristic: %w", err)
	}
	if err := s.store.Put(ctx, tenant.CollectionHeuristics, h.ID, doc); err != nil {
		return Heuristic{}, fmt.Errorf("storing heuristic: %w", err)
	}
	s.cache.Invalidate(h.TenantID)
	s.logger.Info("heuristic created",
		zap.String("tenant_id", h.TenantID),
		zap.String("agent", h.Agent),
		zap.String("name", h.Name),
		zap.String("source", string(h.Source)))
	return h, nil
}

// Update replaces a heuristic's definition, keeping its creation time and
// accumulated stats, and invalidates the tenant's cache entry.
func (s *Service) Update(ctx context.Context, h Heuristic) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("validating heuristic: %w", err)
	}
	err := s.store.Mutate(ctx, tenant.CollectionHeuristics, h.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, ErrNotFound
		}
		var stored Heuristic
		if err := docstore.Decode(doc, &stored); err != nil {
			return nil, fmt.Errorf("decoding heuristic: %w", err)
		}
		h.CreatedAt = stored.CreatedAt
		h.Stats = stored.Stats
		h.UpdatedAt = docstore.Now()
		return docstore.Encode(h)
	})
	if err != nil {
		return fmt.Errorf("updating heuristic: %w", err)
	}
	s.cache.Invalidate(h.TenantID)
	return nil
}

// Get loads one heuristic by ID, bypassing the cache.
func (s *Service) Get(ctx context.Context, id string) (Heuristic, error) {
	if id == "" {
		return Heuristic{}, docstore.ErrEmptyID
	}
	doc, err := s.store.Get(ctx, tenant.CollectionHeuristics, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Heuristic{}, ErrNotFound
		}
		return Heuristic{}, fmt.Errorf("loading heuristic %s: %w", id, err)
	}
	var h Heuristic
	if err := docstore.Decode(doc, &h); err != nil {
		return Heuristic{}, fmt.Errorf("decoding heuristic %s: %w", id, err)
	}
	return h, nil
}

// GetHeuristics returns the tenant's enabled heuristics, descending by
// priority, narrowed to one agent when agent is non-empty. Results come
// from a per-tenant cache with a DefaultCacheTTL staleness bound; store
// failures degrade to an empty list and are never cached.
func (s *Service) GetHeuristics(ctx context.Context, tenantID, agent string) ([]Heuristic, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}

	if hs, ok := s.cache.Get(tenantID); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return filterByAgent(hs, agent), nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	docs, err := s.store.Query(ctx, tenant.CollectionHeuristics, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			{Field: "enabled", Op: docstore.OpEq, Value: true},
		},
		OrderBy:    "priority",
		Descending: true,
	})
	if err != nil {
		s.logger.Warn("heuristic query failed, returning empty result",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return []Heuristic{}, nil
	}

	hs := make([]Heuristic, 0, len(docs))
	for _, doc := range docs {
		var h Heuristic
		if err := docstore.Decode(doc, &h); err != nil {
			s.logger.Warn("skipping undecodable heuristic", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		hs = append(hs, h)
	}
	s.cache.Set(tenantID, hs)
	return filterByAgent(hs, agent), nil
}

// EvaluateHeuristics loads the agent's heuristics and walks them over the
// candidate list.
func (s *Service) EvaluateHeuristics(ctx context.Context, tenantID, agent string, evalCtx EvalContext, items []Item) (EvalResult, error) {
	ctx, span := s.tracer.Start(ctx, "heuristics.evaluate",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("agent", agent),
			attribute.Int("items_in", len(items)),
		))
	defer span.End()

	hs, err := s.GetHeuristics(ctx, tenantID, agent)
	if err != nil {
		span.RecordError(err)
		return EvalResult{}, err
	}

	result := Evaluate(hs, evalCtx, items)
	evaluationsTotal.Inc()
	coverageObserved.Observe(result.Coverage)
	span.SetAttributes(
		attribute.Int("heuristics_total", len(hs)),
		attribute.Int("heuristics_matched", len(result.AppliedIDs())),
		attribute.Int("items_out", len(result.Items)),
	)

	s.logger.Debug("heuristics evaluated",
		zap.String("tenant_id", tenantID),
		zap.String("agent", agent),
		zap.Int("total", len(hs)),
		zap.Int("matched", len(result.AppliedIDs())),
		zap.Int("items_in", len(items)),
		zap.Int("items_out", len(result.Items)))
	return result, nil
}

// UpdateHeuristicStats applies one outcome to a heuristic's counters inside
// a single store mutation, so concurrent outcomes never lose increments.
// The success rate always leaves as successCount/appliedCount.
func (s *Service) UpdateHeuristicStats(ctx context.Context, id string, wasSuccessful bool) error {
	if id == "" {
		return docstore.ErrEmptyID
	}

	var tenantID string
	err := s.store.Mutate(ctx, tenant.CollectionHeuristics, id, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, ErrNotFound
		}
		var h Heuristic
		if err := docstore.Decode(doc, &h); err != nil {
			return nil, fmt.Errorf("decoding heuristic: %w", err)
		}
		h.Stats.AppliedCount++
		if wasSuccessful {
			h.Stats.SuccessCount++
		}
		h.Stats.SuccessRate = float64(h.Stats.SuccessCount) / float64(h.Stats.AppliedCount)
		now := docstore.Now()
		h.Stats.LastEvaluatedAt = now
		h.UpdatedAt = now
		tenantID = h.TenantID
		return docstore.Encode(h)
	})
	if err != nil {
		return fmt.Errorf("updating heuristic stats: %w", err)
	}

	s.cache.Invalidate(tenantID)
	statUpdates.Inc()
	return nil
}

func filterByAgent(hs []Heuristic, agent string) []Heuristic {
	if agent == "" {
		return hs
	}
	filtered := make([]Heuristic, 0, len(hs))
	for _, h := range hs {
		if h.Agent == agent {
			filtered = append(filtered, h)
		}
	}
	return filtered
}
