package eventlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// brokenStore fails every read to exercise degradation paths.
type brokenStore struct {
	docstore.Store
}

func (b *brokenStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	return nil, errors.New("store offline")
}

func (b *brokenStore) Count(ctx context.Context, collection string, filters []docstore.Filter) (int, error) {
	return 0, errors.New("store offline")
}

// seedEvent writes an event directly to the store, bypassing the writer, so
// tests control timestamps precisely.
func seedEvent(t *testing.T, store docstore.Store, ev AgentEvent) {
	t.Helper()
	require.NoError(t, ev.Validate())
	doc, err := docstore.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), tenant.CollectionEvents, ev.ID, doc))
}

func eventAt(id, tenantID, customerID, eventType string, at time.Time) AgentEvent {
	return AgentEvent{
		ID:         id,
		TenantID:   tenantID,
		AgentID:    "budtender",
		Type:       eventType,
		CustomerID: customerID,
		CreatedAt:  docstore.Timestamp(at),
	}
}

func TestService_QueryFiltersAndOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedEvent(t, store, eventAt(fmt.Sprintf("e-%d", i), "acme", "cust-1", TypeProductClick, base.Add(time.Duration(i)*time.Minute)))
	}
	seedEvent(t, store, eventAt("other-tenant", "globex", "cust-1", TypeProductClick, base))
	seedEvent(t, store, eventAt("other-type", "acme", "cust-1", TypePurchase, base))
	seedEvent(t, store, eventAt("other-cust", "acme", "cust-2", TypeProductClick, base))

	events, err := svc.Query(ctx, "acme", EventQuery{Type: TypeProductClick, CustomerID: "cust-1"})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "e-3", events[0].ID, "newest first")
	assert.Equal(t, "e-0", events[3].ID)
}

func TestService_QueryCursorPagination(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedEvent(t, store, eventAt(fmt.Sprintf("e-%d", i), "acme", "", TypeProductClick, base.Add(time.Duration(i)*time.Minute)))
	}

	first, err := svc.Query(ctx, "acme", EventQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "e-4", first[0].ID)

	second, err := svc.Query(ctx, "acme", EventQuery{Limit: 2, StartAfter: first[1].ID})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "e-2", second[0].ID)
	assert.Equal(t, "e-1", second[1].ID)
}

func TestService_QueryDegradesToEmptyOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(&brokenStore{Store: docstore.NewMemoryStore()}, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	events, err := svc.Query(ctx, "acme", EventQuery{})
	require.NoError(t, err, "read failures are advisory, not fatal")
	assert.Empty(t, events)
}

func TestService_QueryRejectsInvalidTenant(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(docstore.NewMemoryStore(), nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	_, err = svc.Query(ctx, "NOT VALID", EventQuery{})
	assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
}

func TestService_CountSince(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		seedEvent(t, store, eventAt(fmt.Sprintf("e-%d", i), "acme", "", TypeProductClick, base.Add(time.Duration(i)*time.Hour)))
	}

	assert.Equal(t, 3, svc.CountSince(ctx, "acme", base.Add(3*time.Hour)))
	assert.Equal(t, 6, svc.CountSince(ctx, "acme", base))
	assert.Equal(t, 0, svc.CountSince(ctx, "acme", base.Add(24*time.Hour)))
}

func TestService_CountSinceDegradesToZero(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(&brokenStore{Store: docstore.NewMemoryStore()}, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	assert.Zero(t, svc.CountSince(ctx, "acme", time.Now()))
}

func TestService_LatestEventTime(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	_, ok := svc.LatestEventTime(ctx, "acme")
	assert.False(t, ok, "no events yet")

	newest := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	seedEvent(t, store, eventAt("e-old", "acme", "", TypeProductClick, newest.Add(-2*time.Hour)))
	seedEvent(t, store, eventAt("e-new", "acme", "", TypeProductClick, newest))

	got, ok := svc.LatestEventTime(ctx, "acme")
	require.True(t, ok)
	assert.True(t, got.Equal(newest))
}

func TestService_ArchiveOlderThan(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	defer svc.Close(ctx)

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedEvent(t, store, eventAt(fmt.Sprintf("old-%d", i), "acme", "", TypeProductClick, cutoff.Add(-time.Duration(i+1)*time.Hour)))
	}
	seedEvent(t, store, eventAt("recent", "acme", "", TypeProductClick, cutoff.Add(time.Hour)))
	seedEvent(t, store, eventAt("other-tenant", "globex", "", TypeProductClick, cutoff.Add(-time.Hour)))

	// two passes at limit 5 drain the backlog
	deleted, err := svc.ArchiveOlderThan(ctx, "acme", cutoff, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	deleted, err = svc.ArchiveOlderThan(ctx, "acme", cutoff, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = svc.ArchiveOlderThan(ctx, "acme", cutoff, 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// recent event and other tenants untouched
	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
