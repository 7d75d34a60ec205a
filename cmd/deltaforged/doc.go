// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// deltaforged is the Deltaforge synchronization daemon. It persists
// dataset snapshots in SQLite, computes binary deltas between
// versions on demand, and serves sync requests over a Unix socket.
//
// Clients speak the lib/wire protocol: a CBOR request envelope per
// exchange, answered by a CBOR response envelope, with payloads
// larger than the inline threshold following as a framed binary
// stream. Three actions are supported: sync (bring a consumer to the
// latest version), put (store new dataset content as the next
// version), and status (report version range and cache counters).
//
// Configuration comes from a YAML file named by DELTAFORGE_CONFIG or
// the --config flag. When snapshot retention is bounded, a background
// loop prunes old versions on a fixed interval.
package main
