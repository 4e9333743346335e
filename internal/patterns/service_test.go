package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
)

// queryFailStore fails all queries to exercise the degraded read path.
type queryFailStore struct {
	docstore.Store
}

func (s *queryFailStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	return nil, errors.New("store offline")
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(docstore.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, zap.NewNop())
	require.Error(t, err)
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cluster := NewCluster("demo", "relaxed_lovers", ClusterCustomer)
	cluster.SupportCount = 12
	cluster.TopEffects = []string{"relaxed", "sleepy"}

	created, err := svc.Create(ctx, cluster)
	require.NoError(t, err)
	require.Equal(t, cluster.ID, created.ID)

	got, err := svc.Get(ctx, cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.TenantID)
	assert.Equal(t, "relaxed_lovers", got.Label)
	assert.Equal(t, ClusterCustomer, got.Type)
	assert.Equal(t, 12, got.SupportCount)
	assert.Equal(t, []string{"relaxed", "sleepy"}, got.TopEffects)
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PatternCluster{TenantID: "demo", Type: ClusterCustomer})
	require.ErrorIs(t, err, ErrMissingLabel)

	_, err = svc.Create(ctx, PatternCluster{TenantID: "demo", Label: "x", Type: "galaxy"})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = svc.Create(ctx, PatternCluster{Label: "x", Type: ClusterCustomer})
	require.Error(t, err)
}

func TestService_UpdateRewritesStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cluster, err := svc.Create(ctx, NewCluster("demo", "energetic_lovers", ClusterCustomer))
	require.NoError(t, err)

	err = svc.Update(ctx, cluster.ID, 40, []string{"sku-1"}, []string{"energetic", "focused"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.SupportCount)
	assert.Equal(t, []string{"sku-1"}, got.TopProducts)
	assert.Equal(t, []string{"energetic", "focused"}, got.TopEffects)

	// Identity is preserved.
	assert.Equal(t, cluster.ID, got.ID)
	assert.Equal(t, cluster.Label, got.Label)
	assert.Equal(t, cluster.CreatedAt.String(), got.CreatedAt.String())
}

func TestService_UpdateUnknownCluster(t *testing.T) {
	svc := newTestService(t)
	err := svc.Update(context.Background(), "missing", 1, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_GetNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListForTenant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for label, support := range map[string]int{"a_lovers": 5, "b_lovers": 50, "c_lovers": 20} {
		c := NewCluster("demo", label, ClusterCustomer)
		c.SupportCount = support
		_, err := svc.Create(ctx, c)
		require.NoError(t, err)
	}
	other := NewCluster("other", "b_lovers", ClusterCustomer)
	_, err := svc.Create(ctx, other)
	require.NoError(t, err)

	clusters, err := svc.ListForTenant(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	// Largest support first, other tenants excluded.
	assert.Equal(t, "b_lovers", clusters[0].Label)
	assert.Equal(t, "c_lovers", clusters[1].Label)
	assert.Equal(t, "a_lovers", clusters[2].Label)
}

func TestService_ListForTenantDegradesOnStoreFailure(t *testing.T) {
	svc, err := NewService(&queryFailStore{Store: docstore.NewMemoryStore()}, zap.NewNop())
	require.NoError(t, err)

	clusters, err := svc.ListForTenant(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestService_FindByLabel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, NewCluster("demo", "sleepy_lovers", ClusterCustomer))
	require.NoError(t, err)

	got, err := svc.FindByLabel(ctx, "demo", "sleepy_lovers")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.FindByLabel(ctx, "demo", "unknown_lovers")
	require.ErrorIs(t, err, ErrNotFound)

	// Same label under another tenant is invisible.
	_, err = svc.FindByLabel(ctx, "other", "sleepy_lovers")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_DiscoverFromEffects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// 20 eligible profiles, 10% threshold = 2 mentions.
	counts := map[string]int{
		"relaxed":   8,
		"energetic": 2,
		"giggly":    1,
	}
	created, err := svc.DiscoverFromEffects(ctx, "demo", counts, 20)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, "energetic_lovers", created[0].Label)
	assert.Equal(t, "relaxed_lovers", created[1].Label)
	assert.Equal(t, 8, created[1].SupportCount)
	assert.Equal(t, []string{"relaxed"}, created[1].TopEffects)
	assert.Equal(t, ClusterCustomer, created[0].Type)

	_, err = svc.FindByLabel(ctx, "demo", "giggly_lovers")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_DiscoverRefreshesExistingCluster(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.DiscoverFromEffects(ctx, "demo", map[string]int{"relaxed": 5}, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second run with a larger count refreshes support, creates nothing.
	second, err := svc.DiscoverFromEffects(ctx, "demo", map[string]int{"relaxed": 9}, 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	got, err := svc.FindByLabel(ctx, "demo", "relaxed_lovers")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, got.ID)
	assert.Equal(t, 9, got.SupportCount)
}

func TestService_DiscoverSkipsEmptyInput(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.DiscoverFromEffects(context.Background(), "demo", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, created)

	created, err = svc.DiscoverFromEffects(context.Background(), "demo", map[string]int{"relaxed": 5}, 0)
	require.NoError(t, err)
	assert.Empty(t, created)
}
