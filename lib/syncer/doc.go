// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncer coordinates sync requests: given the version a
// consumer currently holds, it decides whether to answer up-to-date,
// serve a cached delta, compute a fresh one, or fall back to a full
// snapshot.
//
// The decision ladder, in order:
//
//  1. Base equals the latest version → up to date, no payload.
//  2. Base is zero, unknown, or older than the oldest retained
//     snapshot → full snapshot (the base cannot serve as a delta
//     source).
//  3. Cache hit for (base, latest) → serve the cached patch.
//  4. Cache miss → compute the patch, verify it by applying it
//     locally and comparing the result's hash to the target
//     snapshot's, cache it, serve it.
//
// Concurrent requests for the same (base, latest) pair share one
// computation: late arrivals wait on the in-flight result instead of
// duplicating CPU work. Computation runs outside all store and cache
// locks; only the final cache insertion is synchronized.
//
// A patch that fails self-verification is never served and never
// cached — the request falls back to a full snapshot so the consumer
// is unblocked at a bandwidth cost, and the failure is logged as an
// invariant violation.
package syncer
