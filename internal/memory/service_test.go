package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/patterns"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// getFailStore fails profile reads to exercise the degraded context path.
type getFailStore struct {
	docstore.Store
}

func (s *getFailStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return nil, errors.New("store offline")
}

func newTestService(t *testing.T) (*Service, *patterns.Service, docstore.Store) {
	t.Helper()
	store := docstore.NewMemoryStore()
	clusters, err := patterns.NewService(store, zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(store, clusters, zap.NewNop())
	require.NoError(t, err)
	return svc, clusters, store
}

func seedEvent(t *testing.T, store docstore.Store, ev eventlog.AgentEvent) {
	t.Helper()
	require.NoError(t, ev.Validate())
	doc, err := docstore.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), tenant.CollectionEvents, ev.ID, doc))
}

func customerEvent(eventType, customerID string, at time.Time, payload map[string]any) eventlog.AgentEvent {
	ev := eventlog.NewEvent("demo", "budtender", eventType)
	ev.CustomerID = customerID
	ev.Payload = payload
	ev.CreatedAt = docstore.Timestamp(at)
	return ev
}

func TestNewService_Validation(t *testing.T) {
	clusters, err := patterns.NewService(docstore.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	_, err = NewService(nil, clusters, zap.NewNop())
	require.Error(t, err)

	_, err = NewService(docstore.NewMemoryStore(), nil, zap.NewNop())
	require.Error(t, err)
}

func TestService_UpdateMemoryFromEvents(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	seedEvent(t, store, customerEvent(eventlog.TypePurchase, "c1", base, map[string]any{
		eventlog.PayloadProductID: "p1",
		eventlog.PayloadFormat:    "flower",
	}))
	seedEvent(t, store, customerEvent(eventlog.TypePurchase, "c1", base.Add(time.Hour), map[string]any{
		eventlog.PayloadProductID: "p2",
		eventlog.PayloadFormat:    "flower",
	}))
	seedEvent(t, store, customerEvent(eventlog.TypeProductClick, "c1", base.Add(2*time.Hour), map[string]any{
		eventlog.PayloadProductID: "p1",
		eventlog.PayloadEffects:   []string{"relaxed"},
	}))
	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackPositive, "c1", base.Add(3*time.Hour), map[string]any{
		eventlog.PayloadEffects: []string{"relaxed", "sleepy"},
	}))
	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackNegative, "c1", base.Add(4*time.Hour), map[string]any{
		eventlog.PayloadEffects: []string{"paranoid"},
	}))
	// Another customer's event must not leak in.
	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackPositive, "c2", base, map[string]any{
		eventlog.PayloadEffects: []string{"energetic"},
	}))

	thc := map[string]float64{"p1": 24, "p2": 26}
	profile, err := svc.UpdateMemoryFromEvents(ctx, "demo", "c1", thc)
	require.NoError(t, err)

	assert.Equal(t, []string{"relaxed", "sleepy"}, profile.FavoriteEffects)
	assert.Equal(t, []string{"paranoid"}, profile.AvoidEffects)
	assert.Equal(t, []string{"flower"}, profile.PreferredFormats)
	assert.Equal(t, []string{"p2", "p1"}, profile.LastPurchased, "most recent purchase first")
	assert.Equal(t, PotencyHigh, profile.PotencyTolerance)
	assert.Equal(t, 5, profile.InteractionCount)
	assert.Equal(t, 1, profile.PositiveFeedback)
	assert.Equal(t, 1, profile.NegativeFeedback)

	// The rebuild persisted.
	stored, err := svc.Get(ctx, "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, profile.FavoriteEffects, stored.FavoriteEffects)
}

func TestService_AggregateCustomerEvents_Lookback(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackPositive, "c1", time.Now().Add(-48*time.Hour), map[string]any{
		eventlog.PayloadEffects: []string{"stale"},
	}))
	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackPositive, "c1", time.Now().Add(-time.Hour), map[string]any{
		eventlog.PayloadEffects: []string{"fresh"},
	}))

	all, err := svc.AggregateCustomerEvents(ctx, "demo", "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Events)

	recent, err := svc.AggregateCustomerEvents(ctx, "demo", "c1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, recent.Events)
	assert.Equal(t, 2, recent.Liked["fresh"])
	assert.Zero(t, recent.Liked["stale"])
}

func TestService_UpdateMemoryFromEvents_NoEvents(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateMemoryFromEvents(context.Background(), "demo", "ghost", nil)
	require.ErrorIs(t, err, ErrNoEvents)

	_, err = svc.Get(context.Background(), "demo", "ghost")
	require.ErrorIs(t, err, ErrNotFound, "no profile is written for an empty scan")
}

func TestService_UpdateMemoryFromEvents_PreservesPlacement(t *testing.T) {
	svc, clusters, store := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	seedEvent(t, store, customerEvent(eventlog.TypeFeedbackPositive, "c1", base, map[string]any{
		eventlog.PayloadEffects: []string{"relaxed"},
	}))

	_, err := svc.UpdateMemoryFromEvents(ctx, "demo", "c1", nil)
	require.NoError(t, err)

	cluster := patterns.NewCluster("demo", "relaxed_lovers", patterns.ClusterCustomer)
	cluster.TopEffects = []string{"relaxed"}
	_, err = clusters.Create(ctx, cluster)
	require.NoError(t, err)

	labels, err := svc.AssignCustomerToCluster(ctx, "demo", "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"relaxed_lovers"}, labels)

	// A later rebuild keeps the placement fields.
	rebuilt, err := svc.UpdateMemoryFromEvents(ctx, "demo", "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"relaxed_lovers"}, rebuilt.ClusterLabels)
}

func TestService_AssignCustomerToCluster(t *testing.T) {
	svc, clusters, _ := newTestService(t)
	ctx := context.Background()

	seed := func(label string, effects ...string) {
		c := patterns.NewCluster("demo", label, patterns.ClusterCustomer)
		c.TopEffects = effects
		_, err := clusters.Create(ctx, c)
		require.NoError(t, err)
	}
	seed("relaxed_lovers", "relaxed", "sleepy")
	seed("focus_crowd", "focused", "relaxed")
	seed("party_people", "energetic")

	_, err := svc.Create(ctx, Profile{
		TenantID:        "demo",
		CustomerID:      "c1",
		FavoriteEffects: []string{"relaxed", "sleepy"},
	})
	require.NoError(t, err)

	labels, err := svc.AssignCustomerToCluster(ctx, "demo", "c1")
	require.NoError(t, err)

	// Two overlaps beat one; zero-score clusters are dropped.
	assert.Equal(t, []string{"relaxed_lovers", "focus_crowd"}, labels)

	profile, err := svc.Get(ctx, "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, labels, profile.ClusterLabels)
}

func TestService_AssignCustomerToCluster_NoClusters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Profile{
		TenantID:      "demo",
		CustomerID:    "c1",
		ClusterLabels: []string{"stale_label"},
	})
	require.NoError(t, err)

	labels, err := svc.AssignCustomerToCluster(ctx, "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stale_label"}, labels, "empty cluster list keeps existing labels")
}

func TestService_AssignCustomerToCluster_UnknownCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.AssignCustomerToCluster(context.Background(), "demo", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_FindSimilarCustomers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seed := func(customerID string, labels ...string) {
		_, err := svc.Create(ctx, Profile{
			TenantID:      "demo",
			CustomerID:    customerID,
			ClusterLabels: labels,
		})
		require.NoError(t, err)
	}
	seed("c1", "relaxed_lovers", "focus_crowd")
	seed("c2", "relaxed_lovers")
	seed("c3", "focus_crowd")
	seed("c4", "party_people")

	// Same labels under another tenant stay invisible.
	_, err := svc.Create(ctx, Profile{TenantID: "other", CustomerID: "c9", ClusterLabels: []string{"relaxed_lovers"}})
	require.NoError(t, err)

	similar, err := svc.FindSimilarCustomers(ctx, "demo", "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, similar)

	// The result lands on the profile.
	profile, err := svc.Get(ctx, "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, profile.SimilarCustomers)

	// Limit caps the list.
	capped, err := svc.FindSimilarCustomers(ctx, "demo", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, capped)
}

func TestService_FindSimilarCustomers_NoProfile(t *testing.T) {
	svc, _, _ := newTestService(t)

	similar, err := svc.FindSimilarCustomers(context.Background(), "demo", "ghost", 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func TestService_GetCustomerContext(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Profile{
		TenantID:         "demo",
		CustomerID:       "regular",
		FavoriteEffects:  []string{"relaxed"},
		ClusterLabels:    []string{"relaxed_lovers"},
		InteractionCount: 10,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Profile{
		TenantID:         "demo",
		CustomerID:       "fresh",
		InteractionCount: 2,
	})
	require.NoError(t, err)

	regular, err := svc.GetCustomerContext(ctx, "demo", "regular")
	require.NoError(t, err)
	require.NotNil(t, regular.Profile)
	assert.False(t, regular.IsNewCustomer)
	assert.InDelta(t, 0.2, regular.MemoryConfidence, 1e-9)
	assert.Equal(t, []string{"relaxed_lovers"}, regular.ClusterLabels)

	fresh, err := svc.GetCustomerContext(ctx, "demo", "fresh")
	require.NoError(t, err)
	assert.True(t, fresh.IsNewCustomer, "under three interactions is still new")

	unknown, err := svc.GetCustomerContext(ctx, "demo", "ghost")
	require.NoError(t, err)
	assert.Nil(t, unknown.Profile)
	assert.True(t, unknown.IsNewCustomer)
	assert.Zero(t, unknown.MemoryConfidence)

	anonymous, err := svc.GetCustomerContext(ctx, "demo", "")
	require.NoError(t, err)
	assert.True(t, anonymous.IsNewCustomer)
}

func TestService_GetCustomerContext_ConfidenceSaturates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Profile{
		TenantID:         "demo",
		CustomerID:       "veteran",
		InteractionCount: 500,
	})
	require.NoError(t, err)

	got, err := svc.GetCustomerContext(ctx, "demo", "veteran")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.MemoryConfidence)
}

func TestService_GetCustomerContext_DegradesOnStoreFailure(t *testing.T) {
	clusters, err := patterns.NewService(docstore.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(&getFailStore{Store: docstore.NewMemoryStore()}, clusters, zap.NewNop())
	require.NoError(t, err)

	got, err := svc.GetCustomerContext(context.Background(), "demo", "anyone")
	require.NoError(t, err)
	assert.Nil(t, got.Profile)
	assert.True(t, got.IsNewCustomer)
}

func TestService_EffectFrequencies(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seed := func(customerID string, interactions int, effects ...string) {
		_, err := svc.Create(ctx, Profile{
			TenantID:         "demo",
			CustomerID:       customerID,
			InteractionCount: interactions,
			FavoriteEffects:  effects,
		})
		require.NoError(t, err)
	}
	seed("c1", 10, "relaxed", "sleepy")
	seed("c2", 7, "relaxed")
	seed("c3", 2, "energetic") // below threshold

	counts, eligible, err := svc.EffectFrequencies(ctx, "demo", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, eligible)
	assert.Equal(t, map[string]int{"relaxed": 2, "sleepy": 1}, counts)
}

func TestService_CreateAndUpdate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Profile{TenantID: "demo", CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, ProfileID("demo", "c1"), created.ID)
	assert.Equal(t, PotencyMedium, created.PotencyTolerance)

	_, err = svc.Create(ctx, Profile{TenantID: "demo", CustomerID: "c1"})
	require.ErrorIs(t, err, ErrExists)

	updated := created
	updated.FavoriteEffects = []string{"giggly"}
	require.NoError(t, svc.Update(ctx, updated))

	got, err := svc.Get(ctx, "demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"giggly"}, got.FavoriteEffects)
	assert.Equal(t, created.CreatedAt.String(), got.CreatedAt.String())

	err = svc.Update(ctx, Profile{TenantID: "demo", CustomerID: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
}
