package taint

import (
	"context"
	"sync"

	"github.com/crossflow/crossflow/graph"
)

// CacheStore persists facts keyed on module identity and content across
// scan invocations. A missing or corrupted store is a performance concern
// only: every miss falls back to full recomputation.
type CacheStore interface {
	Get(key string) (*Facts, bool)
	Put(key string, facts *Facts)
}

// MemoryCache is an in-process CacheStore safe for concurrent use.
type MemoryCache struct {
	mu    sync.RWMutex
	facts map[string]*Facts
}

// NewMemoryCache creates an empty in-memory store.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{facts: map[string]*Facts{}}
}

// Get returns the cached facts for a key.
func (c *MemoryCache) Get(key string) (*Facts, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	facts, ok := c.facts[key]
	return facts, ok
}

// Put stores facts under a key.
func (c *MemoryCache) Put(key string, facts *Facts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facts[key] = facts
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.facts)
}

// CachedProvider is a read-through cache over another provider. The key is
// the content fingerprint, so an edited module always misses and gets
// recomputed; facts are a pure function of content, which keeps cached
// entries valid indefinitely.
type CachedProvider struct {
	provider Provider
	store    CacheStore
}

// NewCachedProvider wraps a provider with a cache store.
func NewCachedProvider(provider Provider, store CacheStore) *CachedProvider {
	return &CachedProvider{provider: provider, store: store}
}

// Facts returns cached facts on a fingerprint hit and delegates to the
// wrapped provider on a miss, storing the result. The key carries the
// module path as well as the content fingerprint because fact locations
// embed the path; identical content under two paths must not share facts.
func (c *CachedProvider) Facts(ctx context.Context, path string, src []byte) (*Facts, error) {
	key := path + "@" + graph.Fingerprint(src)
	if facts, ok := c.store.Get(key); ok {
		return facts, nil
	}
	facts, err := c.provider.Facts(ctx, path, src)
	if err != nil {
		return nil, err
	}
	c.store.Put(key, facts)
	return facts, nil
}
