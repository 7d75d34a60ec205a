// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Deltaforge's standard CBOR encoding
// configuration.
//
// All wire messages — sync requests and responses on the service
// socket, and the framed envelopes around snapshot and patch payloads
// — are CBOR. This package provides the shared encoding and decoding
// modes so that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes, which matters here because response envelopes are
// compared byte-for-byte in cache consistency checks.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the service socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
