// Package memo implements the metadata memoization the orchestrator relies
// on: an append-only map from object address to parsed header, and a
// resolution cache keyed by a hash of a group path and child name instead
// of the concatenated string itself. Both are safe for concurrent use by
// the same reasoning as the block cache's index: a double-insert races
// harmlessly because the value is content-addressed by file bytes, so
// whichever goroutine's write loses simply gets discarded.
package memo

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/h5coro-go/h5coro/internal/object"
)

// HeaderCache memoizes parsed object headers by their file address, so
// resolving the same object through two different paths (a hard link, a
// batch that revisits a dataset) parses its header only once.
type HeaderCache struct {
	mu sync.RWMutex
	m  map[uint64]*object.Header
}

// NewHeaderCache builds an empty HeaderCache.
func NewHeaderCache() *HeaderCache {
	return &HeaderCache{m: make(map[uint64]*object.Header)}
}

// Get returns the cached header for address, if present.
func (c *HeaderCache) Get(address uint64) (*object.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.m[address]
	return h, ok
}

// Put inserts h for address if nothing is cached there yet.
func (c *HeaderCache) Put(address uint64, h *object.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[address]; !exists {
		c.m[address] = h
	}
}

// PathKey combines a group's path and a child name into a single hash, so
// link-resolution results can be memoized without building and comparing
// concatenated strings on the resolution hot path.
func PathKey(basePath, name string) uint64 {
	h := xxhash.New()
	h.WriteString(basePath)
	h.Write([]byte{0})
	h.WriteString(name)
	return h.Sum64()
}

// Resolution is a memoized link-resolution outcome, restricted to targets
// within the same file (external-file resolutions are cheap enough, and
// carry a *File pointer that would outlive the cache entry's usefulness).
type Resolution struct {
	Address   uint64
	IsDataset bool
}

// ResolutionCache memoizes Resolution values keyed by PathKey.
type ResolutionCache struct {
	mu sync.RWMutex
	m  map[uint64]Resolution
}

// NewResolutionCache builds an empty ResolutionCache.
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{m: make(map[uint64]Resolution)}
}

// Get returns the cached resolution for key, if present.
func (c *ResolutionCache) Get(key uint64) (Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.m[key]
	return r, ok
}

// Put inserts r for key if nothing is cached there yet.
func (c *ResolutionCache) Put(key uint64, r Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists {
		c.m[key] = r
	}
}
