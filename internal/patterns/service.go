// Package patterns stores and discovers pattern clusters, the offline
// groupings the memory and confidence layers read to situate a customer
// among peers.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// MinClusterShare is the fraction of eligible profiles that must mention an
// effect before discovery creates a cluster for it.
const MinClusterShare = 0.10

// Service manages pattern clusters for all tenants.
type Service struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewService creates a pattern cluster service.
func NewService(store docstore.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("patterns")}, nil
}

// Create validates and persists a cluster.
func (s *Service) Create(ctx context.Context, cluster PatternCluster) (PatternCluster, error) {
	if err := cluster.Validate(); err != nil {
		return PatternCluster{}, fmt.Errorf("validating cluster: %w", err)
	}
	cluster.UpdatedAt = docstore.Now()
	doc, err := docstore.Encode(cluster)
	if err != nil {
		return PatternCluster{}, fmt.Errorf("encoding cluster: %w", err)
	}
	if err := s.store.Put(ctx, tenant.CollectionClusters, cluster.ID, doc); err != nil {
		return PatternCluster{}, fmt.Errorf("storing cluster: %w", err)
	}
	s.logger.Info("cluster created",
		zap.String("tenant_id", cluster.TenantID),
		zap.String("label", cluster.Label),
		zap.String("type", string(cluster.Type)))
	return cluster, nil
}

// Update rewrites the support count, top products, and top effects of an
// existing cluster, refreshing its update timestamp. Identity fields are
// never touched.
func (s *Service) Update(ctx context.Context, id string, supportCount int, topProducts, topEffects []string) error {
	if id == "" {
		return docstore.ErrEmptyID
	}
	err := s.store.Mutate(ctx, tenant.CollectionClusters, id, func(doc docstore.Document) (docstore.Document, error) {
		if doc == nil {
			return nil, ErrNotFound
		}
		var cluster PatternCluster
		if err := docstore.Decode(doc, &cluster); err != nil {
			return nil, fmt.Errorf("decoding cluster: %w", err)
		}
		cluster.SupportCount = supportCount
		cluster.TopProducts = topProducts
		cluster.TopEffects = topEffects
		cluster.UpdatedAt = docstore.Now()
		return docstore.Encode(cluster)
	})
	if err != nil {
		return fmt.Errorf("updating cluster %s: %w", id, err)
	}
	return nil
}

// Get returns a cluster by ID.
func (s *Service) Get(ctx context.Context, id string) (PatternCluster, error) {
	if id == "" {
		return PatternCluster{}, docstore.ErrEmptyID
	}
	doc, err := s.store.Get(ctx, tenant.CollectionClusters, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return PatternCluster{}, ErrNotFound
		}
		return PatternCluster{}, fmt.Errorf("loading cluster %s: %w", id, err)
	}
	var cluster PatternCluster
	if err := docstore.Decode(doc, &cluster); err != nil {
		return PatternCluster{}, fmt.Errorf("decoding cluster %s: %w", id, err)
	}
	return cluster, nil
}

// ListForTenant returns every cluster belonging to a tenant, largest
// support first. Store failures degrade to an empty list so callers keep
// serving without cluster context.
func (s *Service) ListForTenant(ctx context.Context, tenantID string) ([]PatternCluster, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, tenant.CollectionClusters, docstore.Query{
		Filters:    []docstore.Filter{{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID}},
		OrderBy:    "support_count",
		Descending: true,
	})
	if err != nil {
		s.logger.Warn("cluster query failed, returning empty result",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return []PatternCluster{}, nil
	}
	clusters := make([]PatternCluster, 0, len(docs))
	for _, doc := range docs {
		var cluster PatternCluster
		if err := docstore.Decode(doc, &cluster); err != nil {
			s.logger.Warn("skipping undecodable cluster", zap.Error(err))
			continue
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// FindByLabel returns the tenant's cluster carrying the given label, or
// ErrNotFound. Used by discovery to keep labels unique per tenant.
func (s *Service) FindByLabel(ctx context.Context, tenantID, label string) (PatternCluster, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return PatternCluster{}, err
	}
	if label == "" {
		return PatternCluster{}, ErrMissingLabel
	}
	docs, err := s.store.Query(ctx, tenant.CollectionClusters, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			{Field: "label", Op: docstore.OpEq, Value: label},
		},
		Limit: 1,
	})
	if err != nil {
		return PatternCluster{}, fmt.Errorf("querying cluster by label: %w", err)
	}
	if len(docs) == 0 {
		return PatternCluster{}, ErrNotFound
	}
	var cluster PatternCluster
	if err := docstore.Decode(docs[0], &cluster); err != nil {
		return PatternCluster{}, fmt.Errorf("decoding cluster: %w", err)
	}
	return cluster, nil
}

// DiscoverFromEffects turns aggregate effect preferences into customer
// clusters. effectCounts maps an effect to the number of eligible profiles
// that favor it; eligible is how many profiles were considered. Every
// effect favored by at least MinClusterShare of eligible profiles gains an
// "{effect}_lovers" cluster unless the tenant already has one, in which
// case only its support count is refreshed. Returns the newly created
// clusters.
func (s *Service) DiscoverFromEffects(ctx context.Context, tenantID string, effectCounts map[string]int, eligible int) ([]PatternCluster, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if eligible <= 0 || len(effectCounts) == 0 {
		return nil, nil
	}

	// Deterministic order so discovery logs and tests are stable.
	effects := make([]string, 0, len(effectCounts))
	for effect := range effectCounts {
		effects = append(effects, effect)
	}
	sort.Strings(effects)

	threshold := float64(eligible) * MinClusterShare
	var created []PatternCluster
	for _, effect := range effects {
		count := effectCounts[effect]
		if float64(count) < threshold {
			continue
		}
		label := effect + "_lovers"
		existing, err := s.FindByLabel(ctx, tenantID, label)
		if err == nil {
			if uerr := s.Update(ctx, existing.ID, count, existing.TopProducts, existing.TopEffects); uerr != nil {
				return created, fmt.Errorf("refreshing cluster %s: %w", label, uerr)
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, fmt.Errorf("checking cluster %s: %w", label, err)
		}
		cluster := NewCluster(tenantID, label, ClusterCustomer)
		cluster.SupportCount = count
		cluster.TopEffects = []string{effect}
		if _, err := s.Create(ctx, cluster); err != nil {
			return created, fmt.Errorf("creating cluster %s: %w", label, err)
		}
		created = append(created, cluster)
	}
	return created, nil
}
