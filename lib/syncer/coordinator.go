// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deltaforge/deltaforge/lib/clock"
	"github.com/deltaforge/deltaforge/lib/delta"
	"github.com/deltaforge/deltaforge/lib/deltacache"
	"github.com/deltaforge/deltaforge/lib/snapshot"
)

// ErrDeltaVerification indicates a freshly computed patch failed to
// reproduce the target snapshot. It is handled inside Sync (the
// request falls back to a full snapshot) and logged; it never reaches
// a consumer.
var ErrDeltaVerification = errors.New("syncer: computed delta failed verification")

// ResponseKind tells the consumer how to interpret a sync payload.
type ResponseKind uint8

const (
	// KindFullSnapshot means Payload is the complete dataset at
	// ResultingVersion.
	KindFullSnapshot ResponseKind = iota + 1

	// KindDelta means Payload is a patch to apply against the
	// consumer's current content to reach ResultingVersion.
	KindDelta

	// KindUpToDate means the consumer already holds
	// ResultingVersion; Payload is empty.
	KindUpToDate
)

// String returns the wire name of the kind.
func (k ResponseKind) String() string {
	switch k {
	case KindFullSnapshot:
		return "full_snapshot"
	case KindDelta:
		return "delta"
	case KindUpToDate:
		return "up_to_date"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Response is the outcome of a sync request.
type Response struct {
	// Kind determines how Payload is interpreted.
	Kind ResponseKind

	// Payload is the full snapshot content or the patch bytes,
	// depending on Kind. Nil when up to date.
	Payload []byte

	// ResultingVersion is the version the consumer holds after
	// acting on this response.
	ResultingVersion int64
}

// Config holds the coordinator's collaborators.
type Config struct {
	// Store provides snapshots. Required.
	Store *snapshot.Store

	// Cache holds computed deltas. Required.
	Cache *deltacache.Cache

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// Clock measures computation durations for logging. Defaults to
	// the real clock.
	Clock clock.Clock
}

// Coordinator serves sync requests. Safe for concurrent use.
type Coordinator struct {
	store  *snapshot.Store
	cache  *deltacache.Cache
	logger *slog.Logger
	clock  clock.Clock

	// inFlightMu guards inFlight, the registry of computations
	// currently running. Entries are removed once their result is
	// published, success or failure, so a failed computation is
	// retried from scratch by the next request.
	inFlightMu sync.Mutex
	inFlight   map[deltacache.Key]*computation
}

// computation is a shared, awaitable result handle for one
// (source, target) delta computation. Late joiners wait on done and
// read the published fields instead of recomputing.
type computation struct {
	done  chan struct{}
	patch []byte
	err   error
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("syncer: Store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("syncer: Cache is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("syncer: Logger is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		store:    cfg.Store,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		clock:    clk,
		inFlight: make(map[deltacache.Key]*computation),
	}, nil
}

// Sync answers a consumer that currently holds baseVersion. Returns
// [snapshot.ErrEmptyStore] if no snapshot has ever been produced;
// other store failures are returned wrapped. Verification failures
// are recovered internally by serving a full snapshot.
func (c *Coordinator) Sync(ctx context.Context, baseVersion int64) (Response, error) {
	latest, err := c.store.Latest(ctx)
	if err != nil {
		return Response{}, err
	}

	if baseVersion == latest.Version {
		return Response{Kind: KindUpToDate, ResultingVersion: latest.Version}, nil
	}

	// A zero or future base cannot serve as a delta source.
	if baseVersion <= 0 || baseVersion > latest.Version {
		return c.fullSnapshot(latest), nil
	}

	oldest, err := c.store.OldestVersion(ctx)
	if err != nil {
		return Response{}, err
	}
	if baseVersion < oldest {
		c.logger.Debug("base version pruned, serving full snapshot",
			"base_version", baseVersion,
			"oldest_retained", oldest,
		)
		return c.fullSnapshot(latest), nil
	}

	if cached, ok := c.cache.Get(baseVersion, latest.Version); ok {
		// The cached entry records which content hash it
		// reconstructs. If it disagrees with the target snapshot,
		// the entry is corrupt; evict it and recompute.
		if cached.TargetHash == latest.ContentHash {
			return Response{
				Kind:             KindDelta,
				Payload:          cached.PatchBytes,
				ResultingVersion: latest.Version,
			}, nil
		}
		c.logger.Warn("evicting corrupt cache entry",
			"source_version", cached.SourceVersion,
			"target_version", cached.TargetVersion,
		)
		c.cache.Remove(baseVersion, latest.Version)
	}

	patch, err := c.computeShared(ctx, baseVersion, latest)
	switch {
	case err == nil:
		return Response{
			Kind:             KindDelta,
			Payload:          patch,
			ResultingVersion: latest.Version,
		}, nil

	case errors.Is(err, ErrDeltaVerification):
		// Never serve a patch that failed self-verification. The
		// consumer gets the full snapshot instead — correctness
		// preserved at a bandwidth cost.
		c.logger.Error("delta verification failed, serving full snapshot",
			"base_version", baseVersion,
			"target_version", latest.Version,
			"error", err,
		)
		return c.fullSnapshot(latest), nil

	case errors.Is(err, snapshot.ErrNotFound):
		// The base snapshot was pruned between the retention check
		// and the fetch. Same answer as any unrepresentable base.
		return c.fullSnapshot(latest), nil

	default:
		return Response{}, err
	}
}

// CacheStats exposes the delta cache counters for status reporting.
func (c *Coordinator) CacheStats() deltacache.Stats {
	return c.cache.Stats()
}

func (c *Coordinator) fullSnapshot(latest snapshot.Snapshot) Response {
	return Response{
		Kind:             KindFullSnapshot,
		Payload:          latest.Content,
		ResultingVersion: latest.Version,
	}
}

// computeShared returns the patch for (baseVersion, latest.Version),
// computing it at most once across concurrent callers. The first
// caller for a pair runs the computation; the rest wait on its
// result. The registry entry is removed before the result is
// published, so a failure is not sticky — the next request starts a
// fresh computation.
func (c *Coordinator) computeShared(ctx context.Context, baseVersion int64, latest snapshot.Snapshot) ([]byte, error) {
	key := deltacache.Key{Source: baseVersion, Target: latest.Version}

	c.inFlightMu.Lock()
	if existing, ok := c.inFlight[key]; ok {
		c.inFlightMu.Unlock()
		select {
		case <-existing.done:
			return existing.patch, existing.err
		case <-ctx.Done():
			// The computation keeps running for the callers still
			// waiting on it; only this request gives up.
			return nil, ctx.Err()
		}
	}
	handle := &computation{done: make(chan struct{})}
	c.inFlight[key] = handle
	c.inFlightMu.Unlock()

	patch, err := c.compute(ctx, baseVersion, latest)

	c.inFlightMu.Lock()
	delete(c.inFlight, key)
	c.inFlightMu.Unlock()

	handle.patch, handle.err = patch, err
	close(handle.done)

	return patch, err
}

// compute fetches the base snapshot, computes the patch to latest,
// verifies it by applying it locally, and caches the result. No
// store or cache lock is held while the CPU-heavy work runs.
func (c *Coordinator) compute(ctx context.Context, baseVersion int64, latest snapshot.Snapshot) ([]byte, error) {
	source, err := c.store.Get(ctx, baseVersion)
	if err != nil {
		return nil, err
	}

	started := c.clock.Now()
	patch := delta.Compute(source.Content, latest.Content)

	// Verify before anything is cached or served: the patch applied
	// to the source must reproduce the target's content hash
	// exactly. This is checked, not assumed.
	applied, err := delta.Apply(source.Content, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeltaVerification, err)
	}
	if delta.HashContent(applied) != latest.ContentHash {
		return nil, fmt.Errorf("%w: reconstructed content hash does not match version %d",
			ErrDeltaVerification, latest.Version)
	}

	c.cache.Put(deltacache.Delta{
		SourceVersion: baseVersion,
		TargetVersion: latest.Version,
		PatchBytes:    patch,
		TargetHash:    latest.ContentHash,
	})

	c.logger.Info("delta computed",
		"source_version", baseVersion,
		"target_version", latest.Version,
		"source_size", len(source.Content),
		"target_size", len(latest.Content),
		"patch_size", len(patch),
		"duration", c.clock.Now().Sub(started),
	)
	return patch, nil
}
