// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects [Real]; tests inject [Fake] and advance time explicitly.
//
// Snapshot timestamps and the retention ticker are the two places
// Deltaforge touches the clock. Routing both through this interface
// keeps store tests deterministic: a fake clock makes created_at
// values predictable and lets retention tests fire the pruning cycle
// without sleeping.
package clock
