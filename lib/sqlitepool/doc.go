// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size pool of SQLite connections
// with Deltaforge-standard pragmas applied to every connection.
//
// The snapshot store is the only writer and many sync requests read
// concurrently, which is exactly the shape WAL mode serves: readers
// never block on the writer, and the single writer is serialized by
// SQLite itself. The pool wraps sqlitex.Pool and exposes the same
// Take/Put API.
package sqlitepool
