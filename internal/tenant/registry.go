package tenant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
)

// Tenant is a registered dispensary, brand, or delivery operator.
type Tenant struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	Name      string             `json:"name"`
	Archetype string             `json:"archetype,omitempty"`
	CreatedAt docstore.Timestamp `json:"created_at"`
}

// Registry tracks known tenants so batch processes (the nightly dream cycle,
// starter pack tooling) can enumerate them.
type Registry struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewRegistry creates a tenant registry.
func NewRegistry(store docstore.Store, logger *zap.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}, nil
}

// Register upserts a tenant. Registering an existing ID updates its name
// and archetype but keeps the original creation time.
func (r *Registry) Register(ctx context.Context, t Tenant) error {
	if err := ValidateID(t.ID); err != nil {
		return err
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	t.TenantID = t.ID

	err := r.store.Mutate(ctx, CollectionTenants, t.ID, func(doc docstore.Document) (docstore.Document, error) {
		if doc != nil {
			var existing Tenant
			if err := docstore.Decode(doc, &existing); err == nil && !existing.CreatedAt.IsZero() {
				t.CreatedAt = existing.CreatedAt
			}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = docstore.Now()
		}
		return docstore.Encode(t)
	})
	if err != nil {
		return fmt.Errorf("registering tenant: %w", err)
	}

	r.logger.Info("tenant registered",
		zap.String("tenant_id", t.ID),
		zap.String("archetype", t.Archetype))
	return nil
}

// Get returns a tenant by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Tenant, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	doc, err := r.store.Get(ctx, CollectionTenants, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading tenant: %w", err)
	}
	var t Tenant
	if err := docstore.Decode(doc, &t); err != nil {
		return nil, fmt.Errorf("decoding tenant: %w", err)
	}
	return &t, nil
}

// List returns all registered tenants ordered by ID.
func (r *Registry) List(ctx context.Context) ([]Tenant, error) {
	docs, err := r.store.Query(ctx, CollectionTenants, docstore.Query{OrderBy: "id"})
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	tenants := make([]Tenant, 0, len(docs))
	for _, doc := range docs {
		var t Tenant
		if err := docstore.Decode(doc, &t); err != nil {
			r.logger.Warn("skipping undecodable tenant",
				zap.Any("id", doc["id"]),
				zap.Error(err))
			continue
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}
