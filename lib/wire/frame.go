// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload. Larger payloads are
// split across multiple frames by FrameWriter; a peer announcing a
// bigger frame is corrupt or hostile and the read fails.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a peer announces a frame larger
// than MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// FrameWriter writes a byte stream as length-prefixed frames: each
// frame is a 4-byte big-endian length followed by that many payload
// bytes. Close writes the zero-length terminator frame. It does not
// close the underlying writer.
type FrameWriter struct {
	w      io.Writer
	header [4]byte
}

// NewFrameWriter wraps w for framed writing.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write splits p into frames of at most MaxFrameSize and writes them.
func (fw *FrameWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxFrameSize {
			chunk = chunk[:MaxFrameSize]
		}
		if err := fw.writeFrame(chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// Close writes the zero-length terminator frame. The underlying
// writer stays open for the next exchange on the connection.
func (fw *FrameWriter) Close() error {
	binary.BigEndian.PutUint32(fw.header[:], 0)
	_, err := fw.w.Write(fw.header[:])
	return err
}

func (fw *FrameWriter) writeFrame(payload []byte) error {
	binary.BigEndian.PutUint32(fw.header[:], uint32(len(payload)))
	if _, err := fw.w.Write(fw.header[:]); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// FrameReader reads a framed byte stream produced by FrameWriter. It
// presents the concatenated frame payloads as a plain io.Reader and
// returns io.EOF after consuming the terminator frame, leaving the
// underlying reader positioned at the next exchange.
type FrameReader struct {
	r         io.Reader
	remaining int
	done      bool
	header    [4]byte
}

// NewFrameReader wraps r for framed reading.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Read fills p from the current frame, crossing frame boundaries as
// needed. A missing terminator surfaces as io.ErrUnexpectedEOF.
func (fr *FrameReader) Read(p []byte) (int, error) {
	if fr.done {
		return 0, io.EOF
	}
	for fr.remaining == 0 {
		if err := fr.readHeader(); err != nil {
			return 0, err
		}
		if fr.done {
			return 0, io.EOF
		}
	}
	if len(p) > fr.remaining {
		p = p[:fr.remaining]
	}
	n, err := fr.r.Read(p)
	fr.remaining -= n
	if err == io.EOF && fr.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (fr *FrameReader) readHeader() error {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if err == io.EOF {
			// The stream ended without a terminator frame.
			return io.ErrUnexpectedEOF
		}
		return err
	}
	size := binary.BigEndian.Uint32(fr.header[:])
	if size == 0 {
		fr.done = true
		return nil
	}
	if size > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	fr.remaining = int(size)
	return nil
}

// WritePayload frames payload onto w, terminator included.
func WritePayload(w io.Writer, payload []byte) error {
	fw := NewFrameWriter(w)
	if _, err := fw.Write(payload); err != nil {
		return err
	}
	return fw.Close()
}

// ReadPayload consumes one framed payload from r, enforcing maxSize
// as an upper bound on the total payload length.
func ReadPayload(r io.Reader, maxSize int64) ([]byte, error) {
	fr := NewFrameReader(r)
	limited := &io.LimitedReader{R: fr, N: maxSize + 1}
	payload, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > maxSize {
		return nil, fmt.Errorf("wire: payload exceeds %d byte limit", maxSize)
	}
	return payload, nil
}
