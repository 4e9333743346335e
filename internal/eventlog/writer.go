package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

const tracerName = "github.com/leaflinelabs/intuition/internal/eventlog"

// Defaults for the batching writer.
const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = 5 * time.Second
	DefaultFlushTimeout  = 10 * time.Second
)

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("event writer is closed")

// appendRequest pairs an event with the channel its caller waits on.
type appendRequest struct {
	event AgentEvent
	reply chan error
}

// Writer batches event appends into atomic multi-document writes.
//
// A single background goroutine owns the pending batch: callers hand events
// over a channel and block until their batch flushes. A flush triggers when
// the batch reaches the size threshold or the flush interval elapses,
// whichever comes first. The batch commits atomically, so every caller in a
// flush shares its outcome: all succeed or all receive the same error.
//
// Thread Safety: Append may be called from any number of goroutines. Close
// drains the queue, flushes the remainder, and waits for the worker to exit.
type Writer struct {
	store         docstore.Store
	logger        *zap.Logger
	tracer        trace.Tracer
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration

	requests chan appendRequest
	done     chan struct{}

	// mu guards closed so Append never sends on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBatchSize sets the flush threshold. Defaults to 500.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval sets the timer-based flush period. Defaults to 5s.
func WithFlushInterval(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithFlushTimeout bounds the store write for one flush. Defaults to 10s.
func WithFlushTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.flushTimeout = d
		}
	}
}

// NewWriter creates a Writer and starts its background flush goroutine.
func NewWriter(store docstore.Store, logger *zap.Logger, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{
		store:         store,
		logger:        logger.Named("eventlog"),
		tracer:        otel.Tracer(tracerName),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		flushTimeout:  DefaultFlushTimeout,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.requests = make(chan appendRequest, w.batchSize)

	go w.run()
	return w, nil
}

// Append enqueues an event and blocks until its batch is durably written.
// Returns the event ID on success. The error of a failed flush is shared by
// every caller whose event was in that batch.
//
// Cancelling ctx after the event is enqueued abandons the wait but not the
// write: the event may still persist. Callers needing certainty resubmit
// with the same ID, which upserts idempotently.
func (w *Writer) Append(ctx context.Context, event AgentEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	req := appendRequest{event: event, reply: make(chan error, 1)}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return "", ErrWriterClosed
	}
	select {
	case w.requests <- req:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return "", ctx.Err()
	}

	queueDepth.Set(float64(len(w.requests)))

	select {
	case err := <-req.reply:
		if err != nil {
			return "", err
		}
		return event.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops intake, flushes everything still queued, and waits for the
// worker to exit or ctx to expire. Idempotent.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.requests)
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event writer drain: %w", ctx.Err())
	}
}

// run owns the pending batch. It is the only goroutine that touches it.
func (w *Writer) run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event writer panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]appendRequest, 0, w.batchSize)

	for {
		select {
		case req, ok := <-w.requests:
			if !ok {
				// drain whatever arrived before close
				w.flush(batch, "drain")
				return
			}
			batch = append(batch, req)
			if len(batch) >= w.batchSize {
				w.flush(batch, "size")
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch, "timer")
				batch = batch[:0]
			}
		}
	}
}

// flush writes one batch atomically and resolves every waiter with the
// shared outcome.
func (w *Writer) flush(batch []appendRequest, reason string) {
	if len(batch) == 0 {
		return
	}

	// The worker has no caller context; the span roots a fresh trace.
	spanCtx, span := w.tracer.Start(context.Background(), "eventlog.flush",
		trace.WithAttributes(
			attribute.Int("batch_size", len(batch)),
			attribute.String("reason", reason),
		))
	defer span.End()

	docs := make(map[string]docstore.Document, len(batch))
	var encodeErr error
	for _, req := range batch {
		doc, err := docstore.Encode(req.event)
		if err != nil {
			encodeErr = fmt.Errorf("encoding event %s: %w", req.event.ID, err)
			break
		}
		docs[req.event.ID] = doc
	}

	err := encodeErr
	if err == nil {
		ctx, cancel := context.WithTimeout(spanCtx, w.flushTimeout)
		err = w.store.PutBatch(ctx, tenant.CollectionEvents, docs)
		cancel()
	}

	for _, req := range batch {
		req.reply <- err
	}

	flushesTotal.WithLabelValues(reason).Inc()
	batchSizeObserved.Observe(float64(len(batch)))
	queueDepth.Set(float64(len(w.requests)))

	if err != nil {
		span.RecordError(err)
		flushFailures.Inc()
		w.logger.Error("event batch flush failed",
			zap.Int("batch_size", len(batch)),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	w.logger.Debug("event batch flushed",
		zap.Int("batch_size", len(batch)),
		zap.String("reason", reason))
}
