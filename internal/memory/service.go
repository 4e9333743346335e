package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/patterns"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// ClusterLister is the slice of the patterns service memory needs for
// cluster assignment.
type ClusterLister interface {
	ListForTenant(ctx context.Context, tenantID string) ([]patterns.PatternCluster, error)
}

// Service maintains customer memory profiles: event aggregation, preference
// derivation, cluster placement, and the customer context read path.
type Service struct {
	store    docstore.Store
	clusters ClusterLister
	logger   *zap.Logger
}

// NewService creates a customer memory service.
func NewService(store docstore.Store, clusters ClusterLister, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if clusters == nil {
		return nil, errors.New("cluster lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		clusters: clusters,
		logger:   logger.Named("memory"),
	}, nil
}

// Get loads a customer's profile.
func (s *Service) Get(ctx context.Context, tenantID, customerID string) (Profile, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return Profile{}, err
	}
	if customerID == "" {
		return Profile{}, ErrMissingCustomer
	}
	doc, err := s.store.Get(ctx, tenant.CollectionProfiles, ProfileID(tenantID, customerID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	var profile Profile
	if err := docstore.Decode(doc, &profile); err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return profile, nil
}

// Create persists a new profile, failing if one already exists for the
// customer.
func (s *Service) Create(ctx context.Context, profile Profile) (Profile, error) {
	if err := profile.Validate(); err != nil {
		return Profile{}, fmt.Errorf("validating profile: %w", err)
	}
	profile.UpdatedAt = docstore.Now()
	err := s.store.Mutate(ctx, tenant.CollectionProfiles, profile.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc != nil {
			return nil, ErrExists
		}
		return docstore.Encode(profile)
	})
	if err != nil {
		return Profile{}, fmt.Errorf("storing profile: %w", err)
	}
	return profile, nil
}

// Update replaces an existing profile's fields, keeping its creation time.
func (s *Service) Update(ctx context.Context, profile Profile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("validating profile: %w", err)
	}
	err := s.store.Mutate(ctx, tenant.CollectionProfiles, profile.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, ErrNotFound
		}
		var stored Profile
		if err := docstore.Decode(doc, &stored); err != nil {
			return nil, fmt.Errorf("decoding profile: %w", err)
		}
		profile.CreatedAt = stored.CreatedAt
		profile.UpdatedAt = docstore.Now()
		return docstore.Encode(profile)
	})
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// AggregateCustomerEvents scans up to AggregationWindow of the customer's
// most recent events and tallies preference signals. A positive lookback
// additionally bounds the scan to events newer than now-lookback; the cap
// still applies, so at high volume the cap wins. Event read failures
// degrade to an empty tally so downstream rebuilds skip rather than wipe.
func (s *Service) AggregateCustomerEvents(ctx context.Context, tenantID, customerID string, lookback time.Duration) (Aggregate, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return Aggregate{}, err
	}
	if customerID == "" {
		return Aggregate{}, ErrMissingCustomer
	}

	filters := []docstore.Filter{
		{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
		{Field: "customer_id", Op: docstore.OpEq, Value: customerID},
	}
	if lookback > 0 {
		since := docstore.Timestamp(time.Now().Add(-lookback))
		filters = append(filters, docstore.Filter{Field: "created_at", Op: docstore.OpGte, Value: since})
	}

	docs, err := s.store.Query(ctx, tenant.CollectionEvents, docstore.Query{
		Filters:    filters,
		OrderBy:    "created_at",
		Descending: true,
		Limit:      AggregationWindow,
	})
	if err != nil {
		s.logger.Warn("event scan failed, returning empty tally",
			zap.String("tenant_id", tenantID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		return aggregateEvents(nil), nil
	}

	events := make([]eventlog.AgentEvent, 0, len(docs))
	for _, doc := range docs {
		var ev eventlog.AgentEvent
		if err := docstore.Decode(doc, &ev); err != nil {
			s.logger.Warn("skipping undecodable event", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return aggregateEvents(events), nil
}

// UpdateMemoryFromEvents rebuilds the customer's derived preferences from
// their recent events and upserts the profile. thcByProduct supplies catalog
// potency for the tolerance derivation; nil is allowed and yields medium.
// Returns ErrNoEvents, without touching the profile, when the scan came back
// empty.
func (s *Service) UpdateMemoryFromEvents(ctx context.Context, tenantID, customerID string, thcByProduct map[string]float64) (Profile, error) {
	agg, err := s.AggregateCustomerEvents(ctx, tenantID, customerID, 0)
	if err != nil {
		return Profile{}, err
	}
	if agg.Events == 0 {
		return Profile{}, ErrNoEvents
	}

	var updated Profile
	id := ProfileID(tenantID, customerID)
	err = s.store.Mutate(ctx, tenant.CollectionProfiles, id, func(doc docstore.Document) (docstore.Document, error) {
		profile := Profile{
			ID:         id,
			TenantID:   tenantID,
			CustomerID: customerID,
			CreatedAt:  docstore.Now(),
		}
		if doc != nil {
			if err := docstore.Decode(doc, &profile); err != nil {
				return nil, fmt.Errorf("decoding profile: %w", err)
			}
		}
		profile.FavoriteEffects = topN(agg.Liked, MaxFavoriteEffects)
		profile.AvoidEffects = topN(agg.Disliked, MaxAvoidEffects)
		profile.PreferredFormats = topN(agg.Formats, MaxPreferredFormats)
		profile.LastPurchased = dedupeHead(agg.Purchased, MaxLastPurchased)
		profile.PotencyTolerance = potencyFor(agg.Purchased, thcByProduct)
		profile.InteractionCount = agg.Events
		profile.PositiveFeedback = agg.Positive
		profile.NegativeFeedback = agg.Negative
		profile.UpdatedAt = docstore.Now()
		updated = profile
		return docstore.Encode(profile)
	})
	if err != nil {
		return Profile{}, fmt.Errorf("rebuilding profile: %w", err)
	}

	profilesRebuilt.Inc()
	s.logger.Debug("profile rebuilt",
		zap.String("tenant_id", tenantID),
		zap.String("customer_id", customerID),
		zap.Int("events", agg.Events))
	return updated, nil
}

// AssignCustomerToCluster scores the tenant's clusters against the
// customer's favorite effects, two points per overlapping effect, and keeps
// the top MaxClusterLabels labels with a positive score. An empty cluster
// list, including a degraded read, leaves existing labels untouched.
func (s *Service) AssignCustomerToCluster(ctx context.Context, tenantID, customerID string) ([]string, error) {
	profile, err := s.Get(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	clusters, err := s.clusters.ListForTenant(ctx, tenantID)
	if err != nil || len(clusters) == 0 {
		if err != nil {
			s.logger.Warn("cluster list failed, keeping existing labels",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
		return profile.ClusterLabels, nil
	}

	favorites := make(map[string]struct{}, len(profile.FavoriteEffects))
	for _, effect := range profile.FavoriteEffects {
		favorites[effect] = struct{}{}
	}

	type scored struct {
		label string
		score int
	}
	matches := make([]scored, 0, len(clusters))
	for _, cluster := range clusters {
		score := 0
		for _, effect := range cluster.TopEffects {
			if _, ok := favorites[effect]; ok {
				score += 2
			}
		}
		if score > 0 {
			matches = append(matches, scored{label: cluster.Label, score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].label < matches[j].label
	})
	if len(matches) > MaxClusterLabels {
		matches = matches[:MaxClusterLabels]
	}
	labels := make([]string, len(matches))
	for i, m := range matches {
		labels[i] = m.label
	}

	if equalStrings(labels, profile.ClusterLabels) {
		return labels, nil
	}
	err = s.store.Mutate(ctx, tenant.CollectionProfiles, profile.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, ErrNotFound
		}
		var stored Profile
		if err := docstore.Decode(doc, &stored); err != nil {
			return nil, fmt.Errorf("decoding profile: %w", err)
		}
		stored.ClusterLabels = labels
		stored.UpdatedAt = docstore.Now()
		return docstore.Encode(stored)
	})
	if err != nil {
		return nil, fmt.Errorf("saving cluster labels: %w", err)
	}
	clusterAssignments.Inc()
	return labels, nil
}

// FindSimilarCustomers returns up to limit customers sharing any of this
// customer's cluster labels, lexicographically ordered, self excluded. The
// result is also saved on the profile, best effort. Missing profiles and
// failed reads yield an empty list.
func (s *Service) FindSimilarCustomers(ctx context.Context, tenantID, customerID string, limit int) ([]string, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	profile, err := s.Get(ctx, tenantID, customerID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("profile load failed, returning no similar customers",
				zap.String("tenant_id", tenantID),
				zap.String("customer_id", customerID),
				zap.Error(err))
		}
		return []string{}, nil
	}
	if len(profile.ClusterLabels) == 0 {
		return []string{}, nil
	}

	seen := make(map[string]struct{})
	for _, label := range profile.ClusterLabels {
		docs, err := s.store.Query(ctx, tenant.CollectionProfiles, docstore.Query{
			Filters: []docstore.Filter{
				{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
				{Field: "cluster_labels", Op: docstore.OpContains, Value: label},
			},
		})
		if err != nil {
			s.logger.Warn("similar-customer query failed for label",
				zap.String("tenant_id", tenantID),
				zap.String("label", label),
				zap.Error(err))
			continue
		}
		for _, doc := range docs {
			id, _ := doc["customer_id"].(string)
			if id == "" || id == customerID {
				continue
			}
			seen[id] = struct{}{}
		}
	}

	similar := make([]string, 0, len(seen))
	for id := range seen {
		similar = append(similar, id)
	}
	sort.Strings(similar)
	if len(similar) > limit {
		similar = similar[:limit]
	}

	err = s.store.Mutate(ctx, tenant.CollectionProfiles, profile.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, nil
		}
		var stored Profile
		if err := docstore.Decode(doc, &stored); err != nil {
			return nil, fmt.Errorf("decoding profile: %w", err)
		}
		stored.SimilarCustomers = similar
		stored.UpdatedAt = docstore.Now()
		return docstore.Encode(stored)
	})
	if err != nil {
		s.logger.Warn("saving similar customers failed",
			zap.String("tenant_id", tenantID),
			zap.String("customer_id", customerID),
			zap.Error(err))
	}
	return similar, nil
}

// GetCustomerContext assembles the pre-decision summary for a customer.
// Unknown customers, anonymous sessions, and failed reads all come back as
// the new-customer context with zero memory confidence.
func (s *Service) GetCustomerContext(ctx context.Context, tenantID, customerID string) (CustomerContext, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return CustomerContext{}, err
	}
	newCustomer := CustomerContext{IsNewCustomer: true}
	if customerID == "" {
		return newCustomer, nil
	}

	doc, err := s.store.Get(ctx, tenant.CollectionProfiles, ProfileID(tenantID, customerID))
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("profile read failed, serving new-customer context",
				zap.String("tenant_id", tenantID),
				zap.String("customer_id", customerID),
				zap.Error(err))
		}
		contextLookups.WithLabelValues("new").Inc()
		return newCustomer, nil
	}
	var profile Profile
	if err := docstore.Decode(doc, &profile); err != nil {
		s.logger.Warn("profile decode failed, serving new-customer context",
			zap.String("tenant_id", tenantID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		contextLookups.WithLabelValues("new").Inc()
		return newCustomer, nil
	}

	contextLookups.WithLabelValues("known").Inc()
	return CustomerContext{
		Profile:          &profile,
		IsNewCustomer:    profile.InteractionCount < NewCustomerThreshold,
		MemoryConfidence: min(1, float64(profile.InteractionCount)/float64(FullConfidenceAt)),
		ClusterLabels:    profile.ClusterLabels,
	}, nil
}

// EffectFrequencies reports, for each effect, how many profiles with at
// least minInteractions list it as a favorite, plus the count of such
// profiles. Discovery feeds these into cluster creation. Degrades to empty
// on store failure.
func (s *Service) EffectFrequencies(ctx context.Context, tenantID string, minInteractions int) (map[string]int, int, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, 0, err
	}

	docs, err := s.store.Query(ctx, tenant.CollectionProfiles, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			{Field: "interaction_count", Op: docstore.OpGte, Value: minInteractions},
		},
	})
	if err != nil {
		s.logger.Warn("profile scan failed, returning empty frequencies",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return map[string]int{}, 0, nil
	}

	counts := make(map[string]int)
	eligible := 0
	for _, doc := range docs {
		var profile Profile
		if err := docstore.Decode(doc, &profile); err != nil {
			s.logger.Warn("skipping undecodable profile", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		eligible++
		for _, effect := range profile.FavoriteEffects {
			counts[effect]++
		}
	}
	return counts, eligible, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
