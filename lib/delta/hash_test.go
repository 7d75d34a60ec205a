// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import "testing"

func TestHashContentDeterministic(t *testing.T) {
	data := []byte("snapshot content")
	if HashContent(data) != HashContent(data) {
		t.Error("HashContent is not deterministic")
	}
	if HashContent(data) == HashContent([]byte("other content")) {
		t.Error("different content produced the same hash")
	}
}

func TestDomainSeparation(t *testing.T) {
	// The same bytes must hash differently in the content and
	// patch-source domains, so a content hash can never be mistaken
	// for a source checksum.
	data := []byte("identical input bytes")
	if HashContent(data) == hashPatchSource(data) {
		t.Error("content and patch-source domains produced the same hash")
	}
}

func TestFormatParseHashRoundtrip(t *testing.T) {
	hash := HashContent([]byte("roundtrip"))
	formatted := FormatHash(hash)
	if len(formatted) != 64 {
		t.Fatalf("formatted hash is %d characters, want 64", len(formatted))
	}

	parsed, err := ParseHash(formatted)
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	if parsed != hash {
		t.Error("hash did not survive format/parse roundtrip")
	}
}

func TestParseHashRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "zz", "abcd", "not hex at all!"} {
		if _, err := ParseHash(input); err == nil {
			t.Errorf("ParseHash(%q) should fail", input)
		}
	}
}
