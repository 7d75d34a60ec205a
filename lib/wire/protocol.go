// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Actions a client may request.
const (
	// ActionSync asks for whatever brings the consumer from its
	// base version to the latest: a delta, a full snapshot, or
	// confirmation that it is already current.
	ActionSync = "sync"

	// ActionPut stores new dataset content as the next snapshot
	// version. Invoked by the producer side whenever the dataset
	// changes.
	ActionPut = "put"

	// ActionStatus reports the store's version range and cache
	// counters.
	ActionStatus = "status"
)

// Response kinds for ActionSync. The payload's interpretation is
// determined entirely by this field.
const (
	// KindFullSnapshot: the payload is the complete dataset at
	// ResultingVersion.
	KindFullSnapshot = "full_snapshot"

	// KindDelta: the payload is a binary patch to apply against the
	// consumer's current content.
	KindDelta = "delta"

	// KindUpToDate: no payload; the consumer already holds
	// ResultingVersion.
	KindUpToDate = "up_to_date"
)

// SmallPayloadThreshold is the largest payload embedded directly in
// a CBOR envelope. Larger payloads follow the envelope as a framed
// binary stream, keeping envelope decode memory bounded.
const SmallPayloadThreshold = 256 * 1024

// Request is the CBOR message a client sends to open an exchange.
type Request struct {
	Action string `cbor:"action"`

	// BaseVersion is the version the consumer currently holds.
	// Zero means unknown or nothing. ActionSync only.
	BaseVersion int64 `cbor:"base_version,omitempty"`

	// Size is the content size in bytes for ActionPut. When Data is
	// nil, the content follows the envelope as a framed stream of
	// exactly Size bytes.
	Size int64 `cbor:"size,omitempty"`

	// Data holds the content inline for small ActionPut requests.
	Data []byte `cbor:"data,omitempty"`
}

// Response is the CBOR message the server sends to answer a request.
// Error is set on failure and all other fields are zero.
type Response struct {
	Error string `cbor:"error,omitempty"`

	// Kind, ResultingVersion, Size, and Payload answer ActionSync.
	// When Payload is nil and Size is greater than zero, the payload
	// follows the envelope as a framed binary stream.
	Kind             string `cbor:"kind,omitempty"`
	ResultingVersion int64  `cbor:"resulting_version,omitempty"`
	Size             int64  `cbor:"size,omitempty"`
	Payload          []byte `cbor:"payload,omitempty"`

	// Version and ContentHash answer ActionPut.
	Version     int64  `cbor:"version,omitempty"`
	ContentHash string `cbor:"content_hash,omitempty"`

	// Status answers ActionStatus.
	Status *Status `cbor:"status,omitempty"`
}

// Status reports the store's version range and cache counters.
type Status struct {
	LatestVersion  int64  `cbor:"latest_version"`
	OldestVersion  int64  `cbor:"oldest_version"`
	CacheEntries   int    `cbor:"cache_entries"`
	CacheBytes     int64  `cbor:"cache_bytes"`
	CacheHits      uint64 `cbor:"cache_hits"`
	CacheMisses    uint64 `cbor:"cache_misses"`
	CacheEvictions uint64 `cbor:"cache_evictions"`
}

// Validate checks a request for structural problems before it is
// dispatched.
func (r *Request) Validate() error {
	switch r.Action {
	case ActionSync:
		if r.BaseVersion < 0 {
			return fmt.Errorf("wire: base_version must be >= 0, got %d", r.BaseVersion)
		}
	case ActionPut:
		if r.Data == nil && r.Size <= 0 {
			return fmt.Errorf("wire: put without inline data requires a positive size")
		}
		if r.Data != nil && r.Size != 0 && r.Size != int64(len(r.Data)) {
			return fmt.Errorf("wire: put size %d does not match inline data length %d", r.Size, len(r.Data))
		}
	case ActionStatus:
	default:
		return fmt.Errorf("wire: unknown action %q", r.Action)
	}
	return nil
}
