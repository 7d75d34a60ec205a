// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bytes"
	"sort"
)

// buildSuffixArray constructs the suffix array of data using prefix
// doubling: suffixes are sorted by their first 2^k characters, and
// each round doubles the sorted prefix length by combining each
// suffix's rank with the rank of the suffix 2^k positions later.
// O(n log² n) time, three int32 slices of working memory.
//
// The result lists suffix start offsets in lexicographic order of
// the suffixes they begin. Deterministic for identical input.
func buildSuffixArray(data []byte) []int32 {
	n := len(data)
	suffixes := make([]int32, n)
	rank := make([]int32, n)
	nextRank := make([]int32, n)

	for i := 0; i < n; i++ {
		suffixes[i] = int32(i)
		rank[i] = int32(data[i])
	}

	for step := 1; n > 1; step *= 2 {
		// rankAt treats positions past the end as rank -1, which
		// sorts shorter suffixes before their extensions.
		rankAt := func(position int32) int32 {
			if int(position) >= n {
				return -1
			}
			return rank[position]
		}

		less := func(a, b int32) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			return rankAt(a+int32(step)) < rankAt(b+int32(step))
		}

		sort.Slice(suffixes, func(i, j int) bool {
			return less(suffixes[i], suffixes[j])
		})

		nextRank[suffixes[0]] = 0
		for i := 1; i < n; i++ {
			nextRank[suffixes[i]] = nextRank[suffixes[i-1]]
			if less(suffixes[i-1], suffixes[i]) {
				nextRank[suffixes[i]]++
			}
		}
		copy(rank, nextRank)

		// All ranks distinct: the order is fully determined.
		if int(rank[suffixes[n-1]]) == n-1 {
			break
		}
	}

	return suffixes
}

// longestMatch finds the longest prefix of needle that occurs
// anywhere in source, using the source's suffix array. Returns the
// offset of the match in source and its length (0 if nothing
// matches). When several source offsets tie for length, the one
// whose suffix sorts first wins, keeping the result deterministic.
func longestMatch(source []byte, suffixes []int32, needle []byte) (offset, length int) {
	if len(suffixes) == 0 || len(needle) == 0 {
		return 0, 0
	}

	// Binary search for the insertion point of needle among the
	// sorted suffixes. The longest common prefix with needle is
	// achieved by one of the two suffixes adjacent to that point.
	insertion := sort.Search(len(suffixes), func(i int) bool {
		return bytes.Compare(source[suffixes[i]:], needle) >= 0
	})

	for _, candidate := range []int{insertion - 1, insertion} {
		if candidate < 0 || candidate >= len(suffixes) {
			continue
		}
		matched := commonPrefixLength(source[suffixes[candidate]:], needle)
		if matched > length {
			length = matched
			offset = int(suffixes[candidate])
		}
	}

	return offset, length
}

// commonPrefixLength returns the length of the longest common prefix
// of a and b.
func commonPrefixLength(a, b []byte) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return limit
}
