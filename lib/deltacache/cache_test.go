// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package deltacache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func makeDelta(source, target int64, size int) Delta {
	patch := bytes.Repeat([]byte{byte(source)}, size)
	return Delta{
		SourceVersion: source,
		TargetVersion: target,
		PatchBytes:    patch,
	}
}

func TestGetMissThenHit(t *testing.T) {
	cache := New(Config{MaxEntries: 4})

	if _, ok := cache.Get(1, 2); ok {
		t.Fatal("empty cache reported a hit")
	}

	cache.Put(makeDelta(1, 2, 16))

	cached, ok := cache.Get(1, 2)
	if !ok {
		t.Fatal("cache miss after Put")
	}
	if cached.SourceVersion != 1 || cached.TargetVersion != 2 {
		t.Errorf("got delta %d→%d, want 1→2", cached.SourceVersion, cached.TargetVersion)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	cache := New(Config{MaxEntries: 4})

	cache.Put(makeDelta(1, 2, 16))
	cache.Put(makeDelta(1, 2, 32)) // newer computation, different size

	cached, ok := cache.Get(1, 2)
	if !ok {
		t.Fatal("entry lost after overwrite")
	}
	if len(cached.PatchBytes) != 32 {
		t.Errorf("overwrite kept the old patch (%d bytes)", len(cached.PatchBytes))
	}

	stats := cache.Stats()
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
	if stats.Bytes != 32 {
		t.Errorf("Bytes = %d, want 32 after overwrite", stats.Bytes)
	}
}

func TestEntryCountEviction(t *testing.T) {
	cache := New(Config{MaxEntries: 1})

	cache.Put(makeDelta(1, 2, 8))
	cache.Put(makeDelta(1, 3, 8))

	if _, ok := cache.Get(1, 2); ok {
		t.Error("(1,2) should have been evicted by (1,3)")
	}
	if _, ok := cache.Get(1, 3); !ok {
		t.Error("(1,3) should survive")
	}
	if stats := cache.Stats(); stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestLRUOrderRespectsGets(t *testing.T) {
	cache := New(Config{MaxEntries: 2})

	cache.Put(makeDelta(1, 2, 8))
	cache.Put(makeDelta(2, 3, 8))

	// Touch (1,2) so (2,3) becomes the least recently used.
	if _, ok := cache.Get(1, 2); !ok {
		t.Fatal("unexpected miss")
	}

	cache.Put(makeDelta(3, 4, 8))

	if _, ok := cache.Get(2, 3); ok {
		t.Error("(2,3) should have been evicted as least recently used")
	}
	if _, ok := cache.Get(1, 2); !ok {
		t.Error("recently used (1,2) should survive")
	}
}

func TestByteBudgetEviction(t *testing.T) {
	cache := New(Config{MaxBytes: 100})

	cache.Put(makeDelta(1, 2, 60))
	cache.Put(makeDelta(2, 3, 60)) // 120 bytes total → evict (1,2)

	if _, ok := cache.Get(1, 2); ok {
		t.Error("(1,2) should have been evicted to satisfy the byte budget")
	}
	if stats := cache.Stats(); stats.Bytes > 100 {
		t.Errorf("Bytes = %d exceeds budget", stats.Bytes)
	}
}

func TestOversizedEntryIsNotRetained(t *testing.T) {
	cache := New(Config{MaxBytes: 10})

	cache.Put(makeDelta(1, 2, 50))

	// An entry that alone exceeds the budget cannot be kept; the
	// cache must end up within bounds, and a later Get simply
	// triggers recomputation upstream.
	if stats := cache.Stats(); stats.Bytes > 10 {
		t.Errorf("Bytes = %d exceeds budget after oversized Put", stats.Bytes)
	}
}

func TestRemove(t *testing.T) {
	cache := New(Config{MaxEntries: 4})

	cache.Put(makeDelta(1, 2, 8))
	cache.Remove(1, 2)

	if _, ok := cache.Get(1, 2); ok {
		t.Error("entry present after Remove")
	}
	if stats := cache.Stats(); stats.Bytes != 0 || stats.Entries != 0 {
		t.Errorf("stats after Remove = %+v, want zero entries and bytes", stats)
	}

	// Removing an absent key is a no-op.
	cache.Remove(9, 10)
}

func TestConcurrentAccess(t *testing.T) {
	cache := New(Config{MaxEntries: 32})

	var group sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		group.Add(1)
		go func(worker int) {
			defer group.Done()
			for i := 0; i < 200; i++ {
				source := int64(i % 16)
				cache.Put(makeDelta(source, source+1, 64))
				cache.Get(source, source+1)
				if i%10 == 0 {
					cache.Remove(source, source+1)
				}
			}
		}(worker)
	}
	group.Wait()

	// Consistency after the storm: bytes must equal the sum of the
	// surviving entries' patch sizes.
	stats := cache.Stats()
	if stats.Entries > 32 {
		t.Errorf("Entries = %d exceeds bound", stats.Entries)
	}
	if stats.Bytes != int64(stats.Entries)*64 {
		t.Errorf("Bytes = %d inconsistent with %d entries of 64 bytes", stats.Bytes, stats.Entries)
	}
}

func TestKeyString(t *testing.T) {
	key := Key{Source: 3, Target: 7}
	if got, want := key.String(), fmt.Sprintf("%d→%d", 3, 7); got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}
}
