package dreamcycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// recentEventWindow bounds the event-volume component of the readiness
// score.
const recentEventWindow = 7 * 24 * time.Hour

// ReadinessScore rates how much usable data and configuration a tenant has
// accumulated, 0 to 100. Components: any memory profile +20, any heuristic
// +25, any pattern cluster +15, recent event volume up to +20 (>=100 events
// +20, >=50 +15, >=10 +10), event freshness up to +20 (newest event <24h
// +20, <72h +10). Store failures score the component zero; the method never
// errors.
func (s *Service) ReadinessScore(ctx context.Context, tenantID string) int {
	score := 0
	if s.hasAny(ctx, tenant.CollectionProfiles, tenantID) {
		score += 20
	}
	if s.hasAny(ctx, tenant.CollectionHeuristics, tenantID) {
		score += 25
	}
	if s.hasAny(ctx, tenant.CollectionClusters, tenantID) {
		score += 15
	}

	recent := s.deps.Events.CountSince(ctx, tenantID, time.Now().Add(-recentEventWindow))
	switch {
	case recent >= 100:
		score += 20
	case recent >= 50:
		score += 15
	case recent >= 10:
		score += 10
	}

	if latest, ok := s.deps.Events.LatestEventTime(ctx, tenantID); ok {
		switch age := time.Since(latest); {
		case age < 24*time.Hour:
			score += 20
		case age < 72*time.Hour:
			score += 10
		}
	}

	return min(score, 100)
}

func (s *Service) hasAny(ctx context.Context, collection, tenantID string) bool {
	n, err := s.deps.Store.Count(ctx, collection, []docstore.Filter{
		{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
	})
	if err != nil {
		s.logger.Warn("readiness count failed, scoring component zero",
			zap.String("tenant_id", tenantID),
			zap.String("collection", collection),
			zap.Error(err))
		return false
	}
	return n > 0
}
