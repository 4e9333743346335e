// Package tenant provides tenant identification, validation, and the
// registry the global dream cycle enumerates.
package tenant

import (
	"errors"
	"regexp"
)

// Collection names for all engine data. Every document in these collections
// carries tenant_id; services always filter on it.
const (
	CollectionTenants      = "tenants"
	CollectionEvents       = "agent_events"
	CollectionProfiles     = "memory_profiles"
	CollectionClusters     = "pattern_clusters"
	CollectionHeuristics   = "heuristics"
	CollectionOutcomes     = "outcomes"
	CollectionMessages     = "agent_messages"
	CollectionStarterPacks = "starter_packs"
	CollectionBaselines    = "baseline_metrics"
)

// Common errors.
var (
	ErrInvalidTenantID = errors.New("invalid tenant ID")
	ErrNotFound        = errors.New("tenant not found")
)

// idPattern restricts tenant IDs to lowercase slugs usable in collection
// filters, bus subjects, and file paths.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateID rejects tenant IDs that are empty, too long, or carry
// characters outside [a-z0-9_-].
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidTenantID
	}
	return nil
}
