// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Snapshot content hashes and patch
// source checksums are this size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed protocol constants —
// changing them invalidates every stored content hash and every
// existing patch. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so the keys are inspectable
// in hex dumps without sacrificing any cryptographic property.
var (
	contentDomainKey = domainKey{
		'd', 'e', 'l', 't', 'a', 'f', 'o', 'r', 'g', 'e', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	patchSourceDomainKey = domainKey{
		'd', 'e', 'l', 't', 'a', 'f', 'o', 'r', 'g', 'e', '.',
		'p', 'a', 't', 'c', 'h', '.', 's', 'o', 'u', 'r', 'c', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashContent computes the content-domain BLAKE3 keyed hash of
// snapshot content. This is the hash stored alongside every snapshot,
// embedded in patches as the expected target hash, and compared after
// patch application to verify reconstruction.
func HashContent(data []byte) Hash {
	return keyedHash(contentDomainKey, data)
}

// hashPatchSource computes the patch-source-domain checksum of the
// bytes a patch was computed against. Embedded in the patch header so
// Apply can reject a wrong base before reconstructing anything.
func hashPatchSource(data []byte) Hash {
	return keyedHash(patchSourceDomainKey, data)
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in logs and wire metadata.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("content hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// keyedHash computes BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	// The error is only returned for wrong key length, so this cannot
	// fail with our fixed-size type.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("delta: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
