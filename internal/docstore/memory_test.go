package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	doc := Document{"tenant_id": "acme", "name": "indica dream", "thc": 24.5}
	require.NoError(t, store.Put(ctx, "products", "p-1", doc))

	got, err := store.Get(ctx, "products", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got["tenant_id"])
	assert.Equal(t, 24.5, got["thc"])
	assert.Equal(t, "p-1", got["id"], "stored documents carry their id")
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Get(context.Background(), "products", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Put(ctx, "events", "e-1", Document{"type": "first"}))
	require.NoError(t, store.Put(ctx, "events", "e-1", Document{"type": "second"}))

	got, err := store.Get(ctx, "events", "e-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got["type"])

	n, err := store.Count(ctx, "events", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_PutReturnedDocIsIsolated(t *testing.T) {
	// Mutating a document returned by Get must not change the stored copy.
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Put(ctx, "profiles", "c-1", Document{
		"tags": []any{"sleep"},
	}))

	got, err := store.Get(ctx, "profiles", "c-1")
	require.NoError(t, err)
	got["tags"].([]any)[0] = "mutated"

	again, err := store.Get(ctx, "profiles", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "sleep", again["tags"].([]any)[0])
}

func TestMemoryStore_ValidatesCollectionAndID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	err := store.Put(ctx, "Bad-Name", "x", Document{})
	assert.ErrorIs(t, err, ErrInvalidCollection)

	err = store.Put(ctx, "events", "", Document{})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestMemoryStore_PutBatchAtomicValidation(t *testing.T) {
	// A batch containing an invalid ID is rejected before any write lands.
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	err := store.PutBatch(ctx, "events", map[string]Document{
		"e-1": {"type": "ok"},
		"":    {"type": "bad"},
	})
	require.ErrorIs(t, err, ErrEmptyID)

	n, err := store.Count(ctx, "events", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_PutBatchEmpty(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	err := store.PutBatch(context.Background(), "events", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestMemoryStore_DeleteMissingIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	assert.NoError(t, store.Delete(context.Background(), "events", "ghost"))
}

func TestMemoryStore_QueryFilterOrderLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	for i := 1; i <= 5; i++ {
		doc := Document{
			"tenant_id": "acme",
			"rank":      float64(i),
		}
		require.NoError(t, store.Put(ctx, "items", fmt.Sprintf("i-%d", i), doc))
	}
	require.NoError(t, store.Put(ctx, "items", "other", Document{
		"tenant_id": "globex", "rank": 99.0,
	}))

	docs, err := store.Query(ctx, "items", Query{
		Filters:    []Filter{{Field: "tenant_id", Op: OpEq, Value: "acme"}},
		OrderBy:    "rank",
		Descending: true,
		Limit:      3,
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, 5.0, docs[0]["rank"])
	assert.Equal(t, 4.0, docs[1]["rank"])
	assert.Equal(t, 3.0, docs[2]["rank"])
}

func TestMemoryStore_QueryTimestampFilterValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	base := mustParseTime(t, "2026-03-01T10:00:00.000000000Z")
	for i := 0; i < 4; i++ {
		ts := Timestamp(base.Time().Add(time.Duration(i) * 24 * time.Hour))
		require.NoError(t, store.Put(ctx, "events", fmt.Sprintf("e-%d", i), Document{
			"created_at": ts.String(),
		}))
	}

	// Filter values may be Timestamps; they compare against the string form.
	cutoff := Timestamp(base.Time().Add(24 * time.Hour))
	docs, err := store.Query(ctx, "events", Query{
		Filters: []Filter{{Field: "created_at", Op: OpGte, Value: cutoff}},
		OrderBy: "created_at",
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "e-1", docs[0]["id"])
}

func TestMemoryStore_QueryCursorPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.Put(ctx, "items", fmt.Sprintf("i-%d", i), Document{
			"rank": float64(i),
		}))
	}

	first, err := store.Query(ctx, "items", Query{OrderBy: "rank", Descending: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := store.Query(ctx, "items", Query{
		OrderBy:    "rank",
		Descending: true,
		Limit:      2,
		StartAfter: first[1]["id"].(string),
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, 2.0, second[0]["rank"])
	assert.Equal(t, 1.0, second[1]["rank"])
}

func TestMemoryStore_QueryUnknownCursorYieldsEmptyPage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Put(ctx, "items", "i-1", Document{"rank": 1.0}))

	docs, err := store.Query(ctx, "items", Query{OrderBy: "rank", StartAfter: "nope"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStore_SingleFilterModeRejectsComposite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithoutCompositeFilters())
	defer store.Close()

	assert.False(t, store.Capabilities().CompositeFilters)

	_, err := store.Query(ctx, "items", Query{Filters: []Filter{
		{Field: "a", Op: OpEq, Value: "x"},
		{Field: "b", Op: OpEq, Value: "y"},
	}})
	assert.ErrorIs(t, err, ErrUnsupportedFilter)

	_, err = store.Query(ctx, "items", Query{Filters: []Filter{
		{Field: "a", Op: OpEq, Value: "x"},
	}})
	assert.NoError(t, err)
}

func TestMemoryStore_MutateSerializesIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Put(ctx, "heuristics", "h-1", Document{"times_applied": 0.0}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Mutate(ctx, "heuristics", "h-1", func(doc Document) (Document, error) {
				doc["times_applied"] = doc["times_applied"].(float64) + 1
				return doc, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "heuristics", "h-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got["times_applied"])
}

func TestMemoryStore_MutateAbsentDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	var sawNil bool
	err := store.Mutate(ctx, "heuristics", "new", func(doc Document) (Document, error) {
		sawNil = doc == nil
		return Document{"created": true}, nil
	})
	require.NoError(t, err)
	assert.True(t, sawNil)

	got, err := store.Get(ctx, "heuristics", "new")
	require.NoError(t, err)
	assert.Equal(t, true, got["created"])
}

func TestMemoryStore_MutateNilResultLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	err := store.Mutate(ctx, "heuristics", "skip", func(doc Document) (Document, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = store.Get(ctx, "heuristics", "skip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ClosedStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Get(ctx, "events", "x")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Put(ctx, "events", "x", Document{}), ErrStoreClosed)
}
