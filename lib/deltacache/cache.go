// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package deltacache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/deltaforge/deltaforge/lib/delta"
)

// Key identifies a cached delta by the version pair it connects.
type Key struct {
	// Source is the version the patch applies against.
	Source int64

	// Target is the version the patch reconstructs.
	Target int64
}

// String returns the key in "source→target" form for logs.
func (k Key) String() string {
	return fmt.Sprintf("%d→%d", k.Source, k.Target)
}

// Delta is a cached binary patch transforming the content of one
// snapshot version into another's.
type Delta struct {
	// SourceVersion and TargetVersion are the version pair the patch
	// was computed from. SourceVersion < TargetVersion always.
	SourceVersion int64
	TargetVersion int64

	// PatchBytes is the patch produced by delta.Compute. Opaque here.
	PatchBytes []byte

	// TargetHash is the content hash the patch reconstructs,
	// recorded so serving paths can cross-check against the target
	// snapshot without parsing the patch.
	TargetHash delta.Hash
}

// Key returns the cache key for this delta.
func (d Delta) Key() Key {
	return Key{Source: d.SourceVersion, Target: d.TargetVersion}
}

// Config bounds the cache. A zero value for either bound disables
// that bound; both zero means the cache grows without limit.
type Config struct {
	// MaxEntries is the maximum number of cached deltas.
	MaxEntries int

	// MaxBytes is the maximum total size of cached patch bytes.
	MaxBytes int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is a bounded LRU cache of computed deltas. Safe for
// concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[Key]*list.Element
	order      *list.List // front = most recently used
	totalBytes int64

	maxEntries int
	maxBytes   int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given bounds.
func New(cfg Config) *Cache {
	return &Cache{
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
	}
}

// Get returns the cached delta for the version pair and whether it
// was present, marking the entry as recently used on a hit.
func (c *Cache) Get(source, target int64) (Delta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[Key{Source: source, Target: target}]
	if !ok {
		c.misses++
		return Delta{}, false
	}

	c.order.MoveToFront(element)
	c.hits++
	return element.Value.(Delta), true
}

// Put stores a delta, overwriting any existing entry for the same
// version pair. Idempotent: storing an identical recomputation is
// harmless. Eviction runs immediately if the insertion pushes the
// cache over either bound.
func (c *Cache) Put(d Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := d.Key()
	if element, ok := c.entries[key]; ok {
		previous := element.Value.(Delta)
		c.totalBytes += int64(len(d.PatchBytes)) - int64(len(previous.PatchBytes))
		element.Value = d
		c.order.MoveToFront(element)
	} else {
		c.entries[key] = c.order.PushFront(d)
		c.totalBytes += int64(len(d.PatchBytes))
	}

	c.evictOverBudget()
}

// Remove drops the entry for the version pair if present. Used when
// a served patch turns out to be corrupt: the entry is evicted and
// the next request recomputes it.
func (c *Cache) Remove(source, target int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{Source: source, Target: target}
	if element, ok := c.entries[key]; ok {
		c.removeElement(key, element)
	}
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Bytes:     c.totalBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// evictOverBudget removes least-recently-used entries until both
// bounds are satisfied. Must be called with c.mu held.
func (c *Cache) evictOverBudget() {
	for c.overBudget() {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		entry := oldest.Value.(Delta)
		c.removeElement(entry.Key(), oldest)
		c.evictions++
	}
}

func (c *Cache) overBudget() bool {
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		return true
	}
	if c.maxBytes > 0 && c.totalBytes > c.maxBytes {
		return true
	}
	return false
}

// removeElement unlinks an entry from both the map and the LRU list.
// Must be called with c.mu held.
func (c *Cache) removeElement(key Key, element *list.Element) {
	entry := element.Value.(Delta)
	c.totalBytes -= int64(len(entry.PatchBytes))
	c.order.Remove(element)
	delete(c.entries, key)
}
