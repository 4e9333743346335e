package memory

import (
	"errors"
	"fmt"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// Aggregation and derivation bounds.
const (
	// AggregationWindow caps how many recent events one rebuild scans.
	AggregationWindow = 1000

	MaxFavoriteEffects  = 5
	MaxAvoidEffects     = 3
	MaxPreferredFormats = 3
	MaxLastPurchased    = 10
	MaxClusterLabels    = 3

	// NewCustomerThreshold is the interaction count below which a customer
	// is still treated as new.
	NewCustomerThreshold = 3

	// FullConfidenceAt is the interaction count at which memory confidence
	// saturates at 1.0.
	FullConfidenceAt = 50

	// DefaultSimilarLimit caps similar-customer lookups.
	DefaultSimilarLimit = 10
)

// PotencyTolerance buckets a customer's THC comfort level.
type PotencyTolerance string

const (
	PotencyLow    PotencyTolerance = "low"
	PotencyMedium PotencyTolerance = "medium"
	PotencyHigh   PotencyTolerance = "high"
)

// Mean-THC boundaries for the tolerance buckets.
const (
	lowMaxTHC    = 15.0
	mediumMaxTHC = 22.0
)

var (
	ErrMissingCustomer = errors.New("customer ID is required")
	ErrNotFound        = errors.New("profile not found")
	ErrExists          = errors.New("profile already exists")

	// ErrNoEvents reports that a rebuild found nothing to aggregate. A
	// degraded event read looks identical, so rebuilds never mutate the
	// profile in this case.
	ErrNoEvents = errors.New("no events to aggregate")
)

// Profile is the durable memory for one customer within one tenant:
// preference lists derived from the event log plus cluster placement.
type Profile struct {
	ID               string             `json:"id"`
	TenantID         string             `json:"tenant_id"`
	CustomerID       string             `json:"customer_id"`
	FavoriteEffects  []string           `json:"favorite_effects,omitempty"`
	AvoidEffects     []string           `json:"avoid_effects,omitempty"`
	PreferredFormats []string           `json:"preferred_formats,omitempty"`
	PotencyTolerance PotencyTolerance   `json:"potency_tolerance"`
	LastPurchased    []string           `json:"last_purchased,omitempty"`
	ClusterLabels    []string           `json:"cluster_labels,omitempty"`
	SimilarCustomers []string           `json:"similar_customers,omitempty"`
	InteractionCount int                `json:"interaction_count"`
	PositiveFeedback int                `json:"positive_feedback"`
	NegativeFeedback int                `json:"negative_feedback"`
	CreatedAt        docstore.Timestamp `json:"created_at"`
	UpdatedAt        docstore.Timestamp `json:"updated_at"`
}

// Validate checks required fields and fills defaults.
func (p *Profile) Validate() error {
	if err := tenant.ValidateID(p.TenantID); err != nil {
		return err
	}
	if p.CustomerID == "" {
		return ErrMissingCustomer
	}
	if p.ID == "" {
		p.ID = ProfileID(p.TenantID, p.CustomerID)
	}
	if p.PotencyTolerance == "" {
		p.PotencyTolerance = PotencyMedium
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = docstore.Now()
	}
	return nil
}

// ProfileID derives the deterministic document ID for a customer's profile.
// One profile per customer per tenant, so rebuilds are upserts.
func ProfileID(tenantID, customerID string) string {
	return fmt.Sprintf("%s:%s", tenantID, customerID)
}

// CustomerContext is the read-path summary agents consult before deciding
// how to serve a request.
type CustomerContext struct {
	Profile          *Profile `json:"profile,omitempty"`
	IsNewCustomer    bool     `json:"is_new_customer"`
	MemoryConfidence float64  `json:"memory_confidence"`
	ClusterLabels    []string `json:"cluster_labels,omitempty"`
}
