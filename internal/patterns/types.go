package patterns

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// ClusterType classifies what a pattern cluster groups.
type ClusterType string

const (
	ClusterCustomer ClusterType = "customer"
	ClusterProduct  ClusterType = "product"
	ClusterBehavior ClusterType = "behavior"
)

// Validation errors.
var (
	ErrMissingLabel = errors.New("cluster requires a label")
	ErrInvalidType  = errors.New("invalid cluster type")
	ErrNotFound     = errors.New("cluster not found")
)

// PatternCluster is an offline-discovered grouping of customers, products,
// or behaviors sharing attributes. Memory aggregation scores profiles
// against clusters; the confidence scorer treats membership as a signal.
type PatternCluster struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	Label        string             `json:"label"`
	Type         ClusterType        `json:"type"`
	SupportCount int                `json:"support_count"`
	TopProducts  []string           `json:"top_products,omitempty"`
	TopEffects   []string           `json:"top_effects,omitempty"`
	CreatedAt    docstore.Timestamp `json:"created_at"`
	UpdatedAt    docstore.Timestamp `json:"updated_at"`
}

// NewCluster creates a cluster with a generated ID and current timestamps.
func NewCluster(tenantID, label string, clusterType ClusterType) PatternCluster {
	now := docstore.Now()
	return PatternCluster{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Label:     label,
		Type:      clusterType,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields.
func (c *PatternCluster) Validate() error {
	if err := tenant.ValidateID(c.TenantID); err != nil {
		return err
	}
	if c.Label == "" {
		return ErrMissingLabel
	}
	switch c.Type {
	case ClusterCustomer, ClusterProduct, ClusterBehavior:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = docstore.Now()
	}
	return nil
}
