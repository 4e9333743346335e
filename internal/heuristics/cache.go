package heuristics

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache staleness and sizing defaults.
const (
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 512
)

// Cache holds per-tenant heuristic lists between store reads. Entries are
// treated as immutable by all callers. Implementations are process-local
// here; the interface exists so a shared cache can be swapped in for
// multi-instance deployments, where the TTL otherwise bounds cross-process
// staleness after a write.
type Cache interface {
	Get(tenantID string) ([]Heuristic, bool)
	Set(tenantID string, hs []Heuristic)
	Invalidate(tenantID string)
}

// TTLCache is an expiring LRU keyed by tenant.
type TTLCache struct {
	lru *expirable.LRU[string, []Heuristic]
}

// NewTTLCache creates a cache evicting entries after ttl or beyond size
// tenants, whichever comes first. Non-positive arguments take the defaults.
func NewTTLCache(size int, ttl time.Duration) *TTLCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache{lru: expirable.NewLRU[string, []Heuristic](size, nil, ttl)}
}

func (c *TTLCache) Get(tenantID string) ([]Heuristic, bool) {
	return c.lru.Get(tenantID)
}

func (c *TTLCache) Set(tenantID string, hs []Heuristic) {
	c.lru.Add(tenantID, hs)
}

func (c *TTLCache) Invalidate(tenantID string) {
	c.lru.Remove(tenantID)
}
