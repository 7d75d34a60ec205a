// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the socket protocol between the Deltaforge
// daemon and its clients: CBOR request and response envelopes, plus
// length-prefixed binary framing for payloads too large to embed in
// an envelope.
//
// A connection carries a sequence of exchanges. The client sends a
// [Request]; the server answers with a [Response]. Small payloads
// (under [SmallPayloadThreshold]) travel inline in the envelope's
// byte-string fields — CBOR byte strings carry binary without base64
// overhead. Larger payloads follow the envelope as a framed binary
// stream: 4-byte big-endian length prefixes, terminated by a
// zero-length frame.
//
// The payload bytes are opaque at this layer: whether they are a raw
// dataset snapshot or a binary patch is determined entirely by the
// response's Kind field.
package wire
