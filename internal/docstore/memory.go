package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// All operations are guarded by a single mutex; Mutate holds it across the
// read-modify-write so stat updates never interleave.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]Document // collection -> id -> doc
	caps   Capabilities
	closed bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithoutCompositeFilters makes the store reject multi-filter queries,
// mimicking backends that only evaluate one filter per request. Used to
// exercise caller fallback paths.
func WithoutCompositeFilters() MemoryOption {
	return func(s *MemoryStore) {
		s.caps.CompositeFilters = false
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]map[string]Document),
		caps: Capabilities{CompositeFilters: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Clone(doc), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, collection, id string, doc Document) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.putLocked(collection, id, doc)
	return nil
}

// PutBatch implements Store. The single lock makes the batch atomic.
func (s *MemoryStore) PutBatch(ctx context.Context, collection string, docs map[string]Document) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if len(docs) == 0 {
		return ErrEmptyBatch
	}
	for id := range docs {
		if id == "" {
			return ErrEmptyID
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for id, doc := range docs {
		s.putLocked(collection, id, doc)
	}
	return nil
}

// Delete implements Store. Missing IDs are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.data[collection], id)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if !s.caps.CompositeFilters && len(q.Filters) > 1 {
		return nil, fmt.Errorf("%w: store accepts a single filter", ErrUnsupportedFilter)
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	matched := make([]Document, 0)
	for _, doc := range s.data[collection] {
		ok, err := Match(doc, q.Filters)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if ok {
			matched = append(matched, Clone(doc))
		}
	}
	s.mu.RUnlock()

	sortDocs(matched, q.OrderBy, q.Descending)
	matched = applyCursor(matched, q.StartAfter)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	var current Document
	if doc, ok := s.data[collection][id]; ok {
		current = Clone(doc)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	s.putLocked(collection, id, next)
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, collection string, filters []Filter) (int, error) {
	if !ValidCollection(collection) {
		return 0, fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	n := 0
	for _, doc := range s.data[collection] {
		ok, err := Match(doc, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Capabilities implements Store.
func (s *MemoryStore) Capabilities() Capabilities {
	return s.caps
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

func (s *MemoryStore) putLocked(collection, id string, doc Document) {
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string]Document)
		s.data[collection] = coll
	}
	stored := Clone(doc)
	if stored == nil {
		stored = Document{}
	}
	stored["id"] = id
	coll[id] = stored
}

func validateKey(collection, id string) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if id == "" {
		return ErrEmptyID
	}
	return nil
}
