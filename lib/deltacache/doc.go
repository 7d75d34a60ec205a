// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package deltacache holds previously computed deltas keyed by their
// (source version, target version) pair, so a popular sync path is
// computed once and served many times.
//
// Entries are derived data: every cached patch can be recomputed from
// the snapshots it connects, so eviction is purely a space
// optimization and correctness never depends on an entry surviving.
// The cache is bounded by entry count and byte budget; the least
// recently used entries are evicted first. All operations are safe
// for concurrent use, with the LRU bookkeeping under a single lock so
// eviction ordering stays consistent.
package deltacache
