// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/deltaforge/deltaforge/lib/codec"
)

// maxEnvelopeSize bounds a request or response envelope. Envelopes
// carry at most SmallPayloadThreshold inline payload bytes plus field
// overhead; anything near this limit is malformed.
const maxEnvelopeSize = 1 << 20

// WriteMessage CBOR-encodes v and writes it as one length-prefixed
// message: a 4-byte big-endian length followed by the encoded bytes.
//
// Envelopes are length-prefixed rather than decoded straight off the
// connection so that the reader consumes exactly the envelope bytes.
// A streaming CBOR decoder buffers ahead, which would swallow the
// start of a framed payload following the envelope.
func WriteMessage(w io.Writer, v any) error {
	encoded, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode message: %w", err)
	}
	if len(encoded) > maxEnvelopeSize {
		return fmt.Errorf("wire: message size %d exceeds maximum %d", len(encoded), maxEnvelopeSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(encoded)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write message header: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("wire: write message body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r and decodes it
// into v.
func ReadMessage(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("wire: read message header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxEnvelopeSize {
		return fmt.Errorf("wire: message size %d exceeds maximum %d", size, maxEnvelopeSize)
	}
	encoded := make([]byte, size)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return fmt.Errorf("wire: read message body: %w", err)
	}
	if err := codec.Unmarshal(encoded, v); err != nil {
		return fmt.Errorf("wire: decode message: %w", err)
	}
	return nil
}
