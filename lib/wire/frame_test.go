// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	payload := []byte("a modest payload that fits in one frame")
	var buf bytes.Buffer
	if err := WritePayload(&buf, payload); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}

	// Header + payload + terminator header.
	wantLen := 4 + len(payload) + 4
	if buf.Len() != wantLen {
		t.Fatalf("framed length = %d, want %d", buf.Len(), wantLen)
	}

	got, err := ReadPayload(&buf, MaxFrameSize)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", got, payload)
	}
	if buf.Len() != 0 {
		t.Fatalf("reader left %d unconsumed bytes", buf.Len())
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePayload(&buf, nil); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if buf.Len() != 4 {
		t.Fatalf("empty payload framed as %d bytes, want terminator only", buf.Len())
	}
	got, err := ReadPayload(&buf, MaxFrameSize)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want empty", len(got))
	}
}

func TestFrameSplitsLargePayload(t *testing.T) {
	payload := make([]byte, MaxFrameSize*2+1234)
	rng := rand.New(rand.NewSource(7))
	rng.Read(payload)

	var buf bytes.Buffer
	if err := WritePayload(&buf, payload); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	// Three data frames plus terminator.
	wantLen := len(payload) + 4*4
	if buf.Len() != wantLen {
		t.Fatalf("framed length = %d, want %d", buf.Len(), wantLen)
	}

	got, err := ReadPayload(&buf, int64(len(payload)))
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("large payload did not survive framing")
	}
}

func TestFrameReaderStopsAtTerminator(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePayload(&buf, []byte("first")); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	trailing := []byte("next exchange bytes")
	buf.Write(trailing)

	got, err := ReadPayload(&buf, MaxFrameSize)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("payload = %q, want %q", got, "first")
	}
	rest, _ := io.ReadAll(&buf)
	if !bytes.Equal(rest, trailing) {
		t.Fatalf("trailing bytes consumed: remaining %q, want %q", rest, trailing)
	}
}

func TestFrameMissingTerminator(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	if _, err := fw.Write([]byte("truncated stream")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// No Close: the terminator frame is never written.

	_, err := ReadPayload(&buf, MaxFrameSize)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestFrameOversizedHeaderRejected(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])

	_, err := ReadPayload(&buf, MaxFrameSize)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadPayloadEnforcesLimit(t *testing.T) {
	payload := make([]byte, 2048)
	var buf bytes.Buffer
	if err := WritePayload(&buf, payload); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if _, err := ReadPayload(&buf, 1024); err == nil {
		t.Fatal("expected error for payload over the declared limit")
	}
}
