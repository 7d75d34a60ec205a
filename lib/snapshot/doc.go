// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists immutable, content-addressed full
// snapshots of the dataset, each tagged with a monotonically
// increasing version number.
//
// The store is append-only: a snapshot is never mutated after Put
// returns it. Version numbers are gapless and allocated inside the
// same transaction that commits the content, so a failed write never
// burns a version. Content hashes (BLAKE3, content domain) are
// computed on write and verified on every read, so a corrupted
// database row surfaces as an error instead of propagating bad bytes
// into delta computation.
//
// Retention is bounded by configuration: Prune removes the oldest
// snapshots beyond MaxRetainedSnapshots, never touching the latest.
// A consumer whose base version has been pruned simply falls back to
// a full snapshot at the sync layer.
package snapshot
