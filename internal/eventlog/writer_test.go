package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// countingStore records PutBatch invocations so tests can assert batching
// behavior, not just final contents.
type countingStore struct {
	docstore.Store

	mu         sync.Mutex
	batchCalls int
	batchSizes []int
	failNext   error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: docstore.NewMemoryStore()}
}

func (c *countingStore) PutBatch(ctx context.Context, collection string, docs map[string]docstore.Document) error {
	c.mu.Lock()
	c.batchCalls++
	c.batchSizes = append(c.batchSizes, len(docs))
	fail := c.failNext
	c.failNext = nil
	c.mu.Unlock()

	if fail != nil {
		return fail
	}
	return c.Store.PutBatch(ctx, collection, docs)
}

func (c *countingStore) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batchCalls
}

func (c *countingStore) setFailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

func testEvent(customer string) AgentEvent {
	ev := NewEvent("acme", "budtender", TypeProductClick)
	ev.CustomerID = customer
	return ev
}

func TestWriter_SizeTriggeredFlush(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	w, err := NewWriter(store, nil,
		WithBatchSize(3),
		WithFlushInterval(time.Hour)) // timer never fires in this test
	require.NoError(t, err)
	defer w.Close(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := w.Append(ctx, testEvent(fmt.Sprintf("cust-%d", n)))
			assert.NoError(t, err)
			assert.NotEmpty(t, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.calls(), "three appends at batch size 3 flush once")

	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWriter_TimerTriggeredFlush(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	w, err := NewWriter(store, nil,
		WithBatchSize(500),
		WithFlushInterval(30*time.Millisecond))
	require.NoError(t, err)
	defer w.Close(ctx)

	start := time.Now()
	id, err := w.Append(ctx, testEvent("cust-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Less(t, time.Since(start), 5*time.Second, "timer flush must not wait for a full batch")

	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriter_FailedBatchRejectsEveryCaller(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	boom := errors.New("store unavailable")
	store.setFailNext(boom)

	w, err := NewWriter(store, nil,
		WithBatchSize(2),
		WithFlushInterval(time.Hour))
	require.NoError(t, err)
	defer w.Close(ctx)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := w.Append(ctx, testEvent(fmt.Sprintf("cust-%d", n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, boom, "every caller in the failed batch shares the error")
	}

	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "failed batch persists nothing")
}

func TestWriter_IdempotentResubmission(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	w, err := NewWriter(store, nil,
		WithBatchSize(1),
		WithFlushInterval(time.Hour))
	require.NoError(t, err)
	defer w.Close(ctx)

	ev := testEvent("cust-1")
	first, err := w.Append(ctx, ev)
	require.NoError(t, err)

	// retry with the caller-supplied ID upserts rather than duplicating
	second, err := w.Append(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriter_CloseDrainsPendingEvents(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	w, err := NewWriter(store, nil,
		WithBatchSize(500),
		WithFlushInterval(time.Hour)) // only the drain can flush these
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := w.Append(ctx, testEvent(fmt.Sprintf("cust-%d", n)))
			assert.NoError(t, err)
		}(i)
	}

	// give the appends a moment to enqueue, then drain
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close(ctx))
	wg.Wait()

	n, err := store.Count(ctx, tenant.CollectionEvents, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWriter_AppendAfterClose(t *testing.T) {
	ctx := context.Background()
	w, err := NewWriter(docstore.NewMemoryStore(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	_, err = w.Append(ctx, testEvent("cust-1"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriter_ValidatesEvents(t *testing.T) {
	ctx := context.Background()
	w, err := NewWriter(docstore.NewMemoryStore(), nil)
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = w.Append(ctx, AgentEvent{AgentID: "budtender", Type: TypeProductClick})
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = w.Append(ctx, AgentEvent{TenantID: "acme", Type: TypeProductClick})
	assert.ErrorIs(t, err, ErrMissingAgent)

	_, err = w.Append(ctx, AgentEvent{TenantID: "acme", AgentID: "budtender"})
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestWriter_GeneratesIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	w, err := NewWriter(store, nil, WithBatchSize(1))
	require.NoError(t, err)
	defer w.Close(ctx)

	id, err := w.Append(ctx, AgentEvent{
		TenantID: "acme",
		AgentID:  "budtender",
		Type:     TypeSessionStarted,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, tenant.CollectionEvents, id)
	require.NoError(t, err)
	assert.NotEmpty(t, doc["created_at"])
}

func TestWriter_LifecycleLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	w, err := NewWriter(docstore.NewMemoryStore(), nil, WithBatchSize(1))
	require.NoError(t, err)

	_, err = w.Append(ctx, testEvent("cust-1"))
	require.NoError(t, err)

	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx), "close is idempotent")
}
