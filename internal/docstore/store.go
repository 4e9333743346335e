// Package docstore defines the document store interface the decision engine
// persists through.
package docstore

import (
	"context"
	"errors"
)

// Sentinel errors for document store operations.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidCollection indicates collection name validation failure.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrEmptyID indicates a missing document ID.
	ErrEmptyID = errors.New("empty document id")

	// ErrEmptyBatch indicates an empty or nil batch.
	ErrEmptyBatch = errors.New("empty or nil batch")

	// ErrUnsupportedFilter indicates a filter operator the store cannot evaluate.
	ErrUnsupportedFilter = errors.New("unsupported filter operator")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// Document is a schemaless record. Values are restricted to what JSON can
// round-trip: strings, float64, bool, []any, map[string]any, nil.
type Document = map[string]any

// Op is a filter comparison operator.
type Op string

// Filter operators. Contains matches when the field is an array holding the
// value, or a string containing it as a substring.
const (
	OpEq       Op = "=="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Filter constrains one document field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a filtered, ordered range read over one collection.
//
// StartAfter is a document ID cursor: results resume strictly after that
// document in the active sort order. An unknown cursor yields an empty page.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	StartAfter string
}

// Capabilities reports what the backing store can evaluate natively.
// Callers probe once at construction and pick a strategy, rather than
// inspecting per-request errors.
type Capabilities struct {
	// CompositeFilters is true when Query may combine multiple Filters
	// in a single request.
	CompositeFilters bool
}

// MutateFunc transforms a document inside an atomic read-modify-write.
// It receives the current document (nil when absent) and returns the
// replacement. Returning an error aborts the mutation unchanged.
type MutateFunc func(doc Document) (Document, error)

// Store is collection-scoped document storage.
//
// All writes are durable on return. Put is an idempotent upsert: writing the
// same ID twice replaces the document. PutBatch is atomic - either every
// document in the batch is persisted or none is. Mutate runs its function
// under store-side exclusion so read-modify-write cycles (counter bumps,
// stat updates) never interleave.
//
// Tenant isolation is payload-based: every document carries tenant_id and
// every caller filters on it. The store itself does not enforce tenancy.
type Store interface {
	// Get returns the document with the given ID, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Put upserts a document under the given ID. Implementations stamp
	// the document's id field so queries and cursors can rely on it.
	Put(ctx context.Context, collection, id string, doc Document) error

	// PutBatch atomically upserts all documents, keyed by ID.
	// Returns ErrEmptyBatch for an empty or nil map.
	PutBatch(ctx context.Context, collection string, docs map[string]Document) error

	// Delete removes a document. Deleting a missing ID is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// Query returns documents matching q. A store whose Capabilities
	// report CompositeFilters=false returns ErrUnsupportedFilter when q
	// carries more than one filter.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Mutate atomically applies fn to the document with the given ID.
	// fn sees nil when the document is absent; returning (nil, nil)
	// leaves the store unchanged.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) error

	// Count returns the number of documents matching the filters.
	Count(ctx context.Context, collection string, filters []Filter) (int, error)

	// Capabilities reports the store's native query support.
	Capabilities() Capabilities

	// Close releases resources. Operations after Close return ErrStoreClosed.
	Close() error
}
