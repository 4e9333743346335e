package starterpack

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/heuristics"
	"github.com/leaflinelabs/intuition/internal/patterns"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// HeuristicCreator is the slice of the heuristics service Apply needs.
type HeuristicCreator interface {
	Create(ctx context.Context, h heuristics.Heuristic) (heuristics.Heuristic, error)
}

// ClusterCreator is the slice of the patterns service Apply needs.
type ClusterCreator interface {
	Create(ctx context.Context, cluster patterns.PatternCluster) (patterns.PatternCluster, error)
}

// Service installs archetype bundles at tenant onboarding.
type Service struct {
	store      docstore.Store
	heuristics HeuristicCreator
	patterns   ClusterCreator
	logger     *zap.Logger
}

// NewService creates a starter pack installer.
func NewService(store docstore.Store, heuristicSvc HeuristicCreator, patternSvc ClusterCreator, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if heuristicSvc == nil {
		return nil, errors.New("heuristic service is required")
	}
	if patternSvc == nil {
		return nil, errors.New("pattern service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		heuristics: heuristicSvc,
		patterns:   patternSvc,
		logger:     logger.Named("starterpack"),
	}, nil
}

// Apply installs the archetype's bundle for the tenant. The receipt document
// is claimed first inside a mutation, so a repeated or concurrent Apply
// returns ErrAlreadyApplied instead of duplicating rows. A failure after the
// claim leaves the tenant marked; clearing the starter_packs document is the
// manual reset.
func (s *Service) Apply(ctx context.Context, tenantID string, archetype Archetype) (Receipt, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return Receipt{}, err
	}
	pack, err := PackFor(tenantID, archetype)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		TenantID:   tenantID,
		Archetype:  archetype,
		Heuristics: len(pack.Heuristics),
		Clusters:   len(pack.Clusters),
		AppliedAt:  docstore.Now(),
	}
	err = s.store.Mutate(ctx, tenant.CollectionStarterPacks, tenantID, func(doc docstore.Document) (docstore.Document, error) {
		if doc != nil {
			return nil, ErrAlreadyApplied
		}
		return docstore.Encode(receipt)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			return Receipt{}, ErrAlreadyApplied
		}
		return Receipt{}, fmt.Errorf("claiming starter pack receipt: %w", err)
	}

	for _, h := range pack.Heuristics {
		if _, err := s.heuristics.Create(ctx, h); err != nil {
			return Receipt{}, fmt.Errorf("installing heuristic %q: %w", h.Name, err)
		}
	}
	for _, c := range pack.Clusters {
		if _, err := s.patterns.Create(ctx, c); err != nil {
			return Receipt{}, fmt.Errorf("installing cluster %q: %w", c.Label, err)
		}
	}
	doc, err := docstore.Encode(pack.Baseline)
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding baseline: %w", err)
	}
	if err := s.store.Put(ctx, tenant.CollectionBaselines, tenantID, doc); err != nil {
		return Receipt{}, fmt.Errorf("storing baseline: %w", err)
	}

	packsApplied.WithLabelValues(string(archetype)).Inc()
	s.logger.Info("starter pack applied",
		zap.String("tenant_id", tenantID),
		zap.String("archetype", string(archetype)),
		zap.Int("heuristics", receipt.Heuristics),
		zap.Int("clusters", receipt.Clusters))
	return receipt, nil
}

// GetReceipt returns the tenant's application receipt, ErrNotApplied when
// no pack was installed yet.
func (s *Service) GetReceipt(ctx context.Context, tenantID string) (Receipt, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return Receipt{}, err
	}
	doc, err := s.store.Get(ctx, tenant.CollectionStarterPacks, tenantID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%s: %w", tenantID, ErrNotApplied)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("reading starter pack receipt: %w", err)
	}
	var receipt Receipt
	if err := docstore.Decode(doc, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("decoding starter pack receipt: %w", err)
	}
	return receipt, nil
}

// GetBaseline returns the tenant's seeded baseline metrics, ErrNoBaseline
// when none exist.
func (s *Service) GetBaseline(ctx context.Context, tenantID string) (Baseline, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return Baseline{}, err
	}
	doc, err := s.store.Get(ctx, tenant.CollectionBaselines, tenantID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Baseline{}, fmt.Errorf("%s: %w", tenantID, ErrNoBaseline)
	}
	if err != nil {
		return Baseline{}, fmt.Errorf("reading baseline: %w", err)
	}
	var baseline Baseline
	if err := docstore.Decode(doc, &baseline); err != nil {
		return Baseline{}, fmt.Errorf("decoding baseline: %w", err)
	}
	return baseline, nil
}
