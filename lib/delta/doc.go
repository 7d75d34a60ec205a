// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package delta implements the binary delta codec at the core of
// Deltaforge: computing a compact patch that transforms one byte
// buffer into another, and applying such a patch to reconstruct the
// target. The package is pure — no I/O, no shared state — so the
// snapshot store, cache, and coordinator build on it freely.
//
// The codec works in three layers:
//
//   - Hashing: BLAKE3 with domain-separated keyed mode. Snapshot
//     content hashes and the source checksum embedded in every patch
//     live in different domains, so the same bytes never produce a
//     hash that is valid in the wrong context.
//
//   - Matching: a suffix array over the source buffer (prefix-doubling
//     construction, O(n log² n)) drives a greedy longest-match walk
//     over the target, emitting a stream of copy-from-source and
//     insert-literal instructions. The walk is deterministic: the same
//     source and target always produce the same instruction stream.
//
//   - Compression: the instruction stream is compressed with a tagged
//     codec (none, LZ4, or zstd). The tag is chosen by probing the
//     stream with zstd; incompressible streams are stored raw. The
//     chosen tag is recorded in the patch header so Apply needs no
//     out-of-band information.
//
// Every patch carries a fixed-size header with the codec version, the
// expected source and target lengths, a keyed checksum of the source
// it was computed against, and the content hash of the target it
// produces. Apply verifies the source checksum before doing any work
// (returning [ErrSourceMismatch] on a wrong base) and verifies the
// reconstructed target's hash afterwards (returning [ErrCorruptPatch]
// if the patch did not survive storage intact).
package delta
