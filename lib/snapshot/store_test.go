// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/deltaforge/deltaforge/lib/clock"
	"github.com/deltaforge/deltaforge/lib/delta"
)

func testStore(t *testing.T, maxRetained int) (*Store, *clock.FakeClock) {
	t.Helper()

	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, err := Open(Config{
		Path:                 filepath.Join(t.TempDir(), "snapshots.db"),
		MaxRetainedSnapshots: maxRetained,
		Clock:                fake,
		Logger:               slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func TestPutGetRoundtrip(t *testing.T) {
	store, fake := testStore(t, 0)
	ctx := context.Background()

	content := []byte("the dataset at version one")
	stored, err := store.Put(ctx, content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if stored.Version != 1 {
		t.Errorf("first snapshot has version %d, want 1", stored.Version)
	}
	if stored.ContentHash != delta.HashContent(content) {
		t.Error("stored ContentHash does not match content")
	}
	if !stored.CreatedAt.Equal(fake.Now()) {
		t.Errorf("CreatedAt = %v, want %v", stored.CreatedAt, fake.Now())
	}

	fetched, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(fetched.Content, content) {
		t.Error("fetched content differs from stored content")
	}
	if fetched.ContentHash != stored.ContentHash {
		t.Error("fetched ContentHash differs from stored")
	}
	if !fetched.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("fetched CreatedAt = %v, want %v", fetched.CreatedAt, stored.CreatedAt)
	}
}

func TestVersionsAreSequential(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		stored, err := store.Put(ctx, []byte(fmt.Sprintf("content %d", i)))
		if err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		if stored.Version != int64(i) {
			t.Errorf("put %d allocated version %d", i, stored.Version)
		}
	}
}

func TestConcurrentPutsAllocateDistinctContiguousVersions(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	const writers = 16
	versions := make(chan int64, writers)

	var group sync.WaitGroup
	for i := 0; i < writers; i++ {
		group.Add(1)
		go func(i int) {
			defer group.Done()
			stored, err := store.Put(ctx, []byte(fmt.Sprintf("writer %d", i)))
			if err != nil {
				t.Errorf("concurrent Put: %v", err)
				versions <- 0
				return
			}
			versions <- stored.Version
		}(i)
	}
	group.Wait()
	close(versions)

	seen := make(map[int64]bool)
	for version := range versions {
		if seen[version] {
			t.Fatalf("version %d allocated twice", version)
		}
		seen[version] = true
	}
	for expected := int64(1); expected <= writers; expected++ {
		if !seen[expected] {
			t.Errorf("version %d missing; versions are not contiguous", expected)
		}
	}
}

func TestGetMissingVersion(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	if _, err := store.Put(ctx, []byte("only version")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := store.Get(ctx, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(99): got %v, want ErrNotFound", err)
	}
}

func TestLatestOnEmptyStore(t *testing.T) {
	store, _ := testStore(t, 0)

	if _, err := store.Latest(context.Background()); !errors.Is(err, ErrEmptyStore) {
		t.Errorf("Latest on empty store: got %v, want ErrEmptyStore", err)
	}
	if _, err := store.OldestVersion(context.Background()); !errors.Is(err, ErrEmptyStore) {
		t.Errorf("OldestVersion on empty store: got %v, want ErrEmptyStore", err)
	}
}

func TestLatestReturnsNewest(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Put(ctx, []byte(fmt.Sprintf("content %d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Version != 3 {
		t.Errorf("Latest().Version = %d, want 3", latest.Version)
	}
	if !bytes.Equal(latest.Content, []byte("content 3")) {
		t.Error("Latest returned wrong content")
	}
}

func TestVersionsSince(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := store.Put(ctx, []byte(fmt.Sprintf("content %d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	versions, err := store.VersionsSince(ctx, 2)
	if err != nil {
		t.Fatalf("VersionsSince: %v", err)
	}
	if len(versions) != 2 || versions[0] != 3 || versions[1] != 4 {
		t.Errorf("VersionsSince(2) = %v, want [3 4]", versions)
	}

	versions, err = store.VersionsSince(ctx, 4)
	if err != nil {
		t.Fatalf("VersionsSince: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("VersionsSince(4) = %v, want empty", versions)
	}
}

func TestPrune(t *testing.T) {
	store, _ := testStore(t, 2)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := store.Put(ctx, []byte(fmt.Sprintf("content %d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune removed %d snapshots, want 3", removed)
	}

	oldest, err := store.OldestVersion(ctx)
	if err != nil {
		t.Fatalf("OldestVersion: %v", err)
	}
	if oldest != 4 {
		t.Errorf("oldest retained version = %d, want 4", oldest)
	}

	// The latest survives and pruned versions are gone.
	if _, err := store.Get(ctx, 5); err != nil {
		t.Errorf("latest snapshot was pruned: %v", err)
	}
	if _, err := store.Get(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(3) after prune: got %v, want ErrNotFound", err)
	}
}

func TestPruneUnboundedIsNoop(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Put(ctx, []byte(fmt.Sprintf("content %d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("unbounded Prune removed %d snapshots", removed)
	}
}

func TestGetDetectsCorruptedContent(t *testing.T) {
	store, _ := testStore(t, 0)
	ctx := context.Background()

	if _, err := store.Put(ctx, []byte("pristine content")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Corrupt the stored row behind the store's back.
	conn, err := store.pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = sqlitex.ExecuteTransient(conn,
		`UPDATE snapshots SET content = x'DEADBEEF' WHERE version = 1`, nil)
	store.pool.Put(conn)
	if err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	if _, err := store.Get(ctx, 1); err == nil {
		t.Fatal("Get should fail hash verification on corrupted content")
	}
}

func TestReopenPreservesVersionSequence(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "snapshots.db")
	logger := slog.New(slog.DiscardHandler)
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	store, err := Open(Config{Path: path, Clock: fake, Logger: logger})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Put(ctx, []byte("before restart")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Path: path, Clock: fake, Logger: logger})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stored, err := reopened.Put(ctx, []byte("after restart"))
	if err != nil {
		t.Fatalf("Put after reopen: %v", err)
	}
	if stored.Version != 2 {
		t.Errorf("version after reopen = %d, want 2", stored.Version)
	}
}
