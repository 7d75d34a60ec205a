// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Patch format errors. Callers distinguish a structurally broken
// patch (cache or storage corruption — evict and recompute) from a
// patch applied against the wrong base (protocol misuse — reject)
// with errors.Is.
var (
	ErrCorruptPatch   = errors.New("delta: corrupt patch")
	ErrSourceMismatch = errors.New("delta: patch does not match source")
)

// patchMagic identifies a Deltaforge patch and its format version.
// The trailing digit is the version: a format change bumps it, and
// old patches are rejected as corrupt rather than misread.
var patchMagic = [8]byte{'D', 'F', 'P', 'A', 'T', 'C', 'H', '1'}

// Patch header layout. All integers are big-endian uint64.
//
//	offset  size  field
//	     0     8  magic "DFPATCH1"
//	     8     1  compression tag
//	     9     8  source length
//	    17     8  target length
//	    25     8  instruction stream length (uncompressed)
//	    33    32  source checksum (patch-source domain)
//	    65    32  target content hash (content domain)
//	    97     —  compressed instruction stream
const patchHeaderSize = 97

// Instruction opcodes. The instruction stream is a sequence of
// operations, each an opcode byte followed by uvarint operands.
const (
	// opCopy: uvarint source offset, uvarint length. Copies bytes
	// from the source buffer to the output.
	opCopy = 0x01

	// opInsert: uvarint length, then that many literal bytes.
	// Appends bytes that do not occur usably in the source.
	opInsert = 0x02
)

// minMatchLength is the shortest source match worth encoding as a
// copy instruction. Below this, the opcode and operand overhead
// exceeds the literal bytes saved.
const minMatchLength = 8

// Compute builds a patch that transforms source into target.
// Deterministic: the same source and target always yield
// byte-identical patches for a given format version. The patch is
// correct for any inputs, including an empty source (the patch
// degenerates to a single insert), identical source and target (a
// single copy), and a target shorter than the source.
func Compute(source, target []byte) []byte {
	instructions := encodeInstructions(source, target)
	body, tag := compressBody(instructions)

	patch := make([]byte, patchHeaderSize+len(body))
	copy(patch[0:8], patchMagic[:])
	patch[8] = byte(tag)
	binary.BigEndian.PutUint64(patch[9:17], uint64(len(source)))
	binary.BigEndian.PutUint64(patch[17:25], uint64(len(target)))
	binary.BigEndian.PutUint64(patch[25:33], uint64(len(instructions)))

	sourceChecksum := hashPatchSource(source)
	copy(patch[33:65], sourceChecksum[:])

	targetHash := HashContent(target)
	copy(patch[65:97], targetHash[:])

	copy(patch[patchHeaderSize:], body)
	return patch
}

// Apply reconstructs the target from source and a patch produced by
// [Compute]. Returns [ErrSourceMismatch] if the patch was computed
// against a different source, and [ErrCorruptPatch] if the patch's
// structure is malformed or the reconstructed target fails hash
// verification.
func Apply(source, patch []byte) ([]byte, error) {
	header, err := parseHeader(patch)
	if err != nil {
		return nil, err
	}

	// Reject a wrong base before doing any reconstruction work. A
	// length mismatch is a cheap pre-check; the keyed checksum is
	// authoritative.
	if uint64(len(source)) != header.sourceLength {
		return nil, fmt.Errorf("%w: source is %d bytes, patch expects %d",
			ErrSourceMismatch, len(source), header.sourceLength)
	}
	if hashPatchSource(source) != header.sourceChecksum {
		return nil, fmt.Errorf("%w: source checksum mismatch", ErrSourceMismatch)
	}

	instructions, err := decompressBody(patch[patchHeaderSize:], header.compression, int(header.bodyLength))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPatch, err)
	}

	target, err := applyInstructions(source, instructions, int(header.targetLength))
	if err != nil {
		return nil, err
	}

	if HashContent(target) != header.targetHash {
		return nil, fmt.Errorf("%w: reconstructed target fails hash verification", ErrCorruptPatch)
	}

	return target, nil
}

// Info describes a patch without applying it.
type Info struct {
	// Compression is the algorithm applied to the instruction stream.
	Compression CompressionTag

	// SourceLength and TargetLength are the byte lengths of the
	// buffers the patch was computed between.
	SourceLength uint64
	TargetLength uint64

	// TargetHash is the content-domain hash of the target the patch
	// reconstructs. Matches the target snapshot's content hash.
	TargetHash Hash
}

// Inspect parses a patch header. Returns [ErrCorruptPatch] if the
// patch is malformed.
func Inspect(patch []byte) (Info, error) {
	header, err := parseHeader(patch)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Compression:  header.compression,
		SourceLength: header.sourceLength,
		TargetLength: header.targetLength,
		TargetHash:   header.targetHash,
	}, nil
}

type patchHeader struct {
	compression    CompressionTag
	sourceLength   uint64
	targetLength   uint64
	bodyLength     uint64
	sourceChecksum Hash
	targetHash     Hash
}

func parseHeader(patch []byte) (patchHeader, error) {
	var header patchHeader
	if len(patch) < patchHeaderSize {
		return header, fmt.Errorf("%w: %d bytes, header needs %d", ErrCorruptPatch, len(patch), patchHeaderSize)
	}
	if !bytes.Equal(patch[0:8], patchMagic[:]) {
		return header, fmt.Errorf("%w: bad magic", ErrCorruptPatch)
	}

	header.compression = CompressionTag(patch[8])
	header.sourceLength = binary.BigEndian.Uint64(patch[9:17])
	header.targetLength = binary.BigEndian.Uint64(patch[17:25])
	header.bodyLength = binary.BigEndian.Uint64(patch[25:33])
	copy(header.sourceChecksum[:], patch[33:65])
	copy(header.targetHash[:], patch[65:97])

	if header.compression > CompressionZstd {
		return header, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptPatch, header.compression)
	}

	// A valid instruction stream never exceeds a small multiple of
	// the target it produces: literals total at most the target
	// length, and each copy instruction spends at most 21 bytes to
	// cover at least minMatchLength output bytes. Rejecting a body
	// length outside this envelope bounds decompression allocations
	// before trusting a possibly corrupted header field.
	if header.bodyLength > 4*header.targetLength+64 {
		return header, fmt.Errorf("%w: body length %d implausible for target length %d",
			ErrCorruptPatch, header.bodyLength, header.targetLength)
	}
	return header, nil
}

// encodeInstructions walks the target greedily, emitting a copy for
// every source match of at least minMatchLength bytes and batching
// everything between matches into literal inserts.
func encodeInstructions(source, target []byte) []byte {
	var stream bytes.Buffer
	var operands [2 * binary.MaxVarintLen64]byte

	emitCopy := func(offset, length int) {
		stream.WriteByte(opCopy)
		written := binary.PutUvarint(operands[:], uint64(offset))
		written += binary.PutUvarint(operands[written:], uint64(length))
		stream.Write(operands[:written])
	}

	emitInsert := func(literal []byte) {
		if len(literal) == 0 {
			return
		}
		stream.WriteByte(opInsert)
		written := binary.PutUvarint(operands[:], uint64(len(literal)))
		stream.Write(operands[:written])
		stream.Write(literal)
	}

	var suffixes []int32
	if len(source) > 0 {
		suffixes = buildSuffixArray(source)
	}

	position := 0
	literalStart := 0
	for position < len(target) {
		offset, length := longestMatch(source, suffixes, target[position:])
		if length >= minMatchLength {
			emitInsert(target[literalStart:position])
			emitCopy(offset, length)
			position += length
			literalStart = position
			continue
		}
		position++
	}
	emitInsert(target[literalStart:])

	return stream.Bytes()
}

// applyInstructions executes an instruction stream against source,
// producing exactly targetLength bytes. Any structural defect — a
// truncated operand, an out-of-range copy, output of the wrong size
// — returns [ErrCorruptPatch].
func applyInstructions(source, instructions []byte, targetLength int) ([]byte, error) {
	// Preallocation is capped so a corrupted target length field
	// cannot force a giant allocation; append growth takes over for
	// genuinely large targets.
	capacity := targetLength
	if capacity > 1<<20 {
		capacity = 1 << 20
	}
	target := make([]byte, 0, capacity)
	reader := bytes.NewReader(instructions)

	for reader.Len() > 0 {
		opcode, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated instruction stream", ErrCorruptPatch)
		}

		switch opcode {
		case opCopy:
			offset, err := binary.ReadUvarint(reader)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated copy offset", ErrCorruptPatch)
			}
			length, err := binary.ReadUvarint(reader)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated copy length", ErrCorruptPatch)
			}
			end := offset + length
			if end < offset || end > uint64(len(source)) {
				return nil, fmt.Errorf("%w: copy [%d, %d) outside source of %d bytes",
					ErrCorruptPatch, offset, end, len(source))
			}
			target = append(target, source[offset:end]...)

		case opInsert:
			length, err := binary.ReadUvarint(reader)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated insert length", ErrCorruptPatch)
			}
			if length > uint64(reader.Len()) {
				return nil, fmt.Errorf("%w: insert of %d bytes exceeds remaining stream",
					ErrCorruptPatch, length)
			}
			start := len(target)
			target = append(target, make([]byte, length)...)
			if _, err := reader.Read(target[start:]); err != nil {
				return nil, fmt.Errorf("%w: reading insert literal: %v", ErrCorruptPatch, err)
			}

		default:
			return nil, fmt.Errorf("%w: unknown opcode 0x%02x", ErrCorruptPatch, opcode)
		}

		if len(target) > targetLength {
			return nil, fmt.Errorf("%w: output exceeds declared target length %d",
				ErrCorruptPatch, targetLength)
		}
	}

	if len(target) != targetLength {
		return nil, fmt.Errorf("%w: output is %d bytes, header declares %d",
			ErrCorruptPatch, len(target), targetLength)
	}
	return target, nil
}
