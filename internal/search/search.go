// Package search provides the byte substring search primitive spec.md
// treats as an out-of-scope collaborator: "first-occurrence byte search."
// Kept in its own package so the implementation can be swapped (e.g. for a
// Boyer-Moore variant, as the original C used) without touching call sites
// in internal/httpscan.
package search

import "bytes"

// Index returns the offset of the first occurrence of needle in haystack,
// or -1 if needle does not occur. Mirrors the contract of
// boyermoore_search in original_source/pe_dump/pe_dump.c: a plain
// first-occurrence byte search, no wraparound, no case-folding.
func Index(haystack, needle []byte) int {
	return bytes.Index(haystack, needle)
}

// Contains reports whether needle occurs anywhere in haystack.
func Contains(haystack, needle []byte) bool {
	return bytes.Contains(haystack, needle)
}

// HasPrefixAt reports whether needle occurs in haystack starting exactly
// at offset. Used by internal/httpscan to check fixed-offset markers like
// the " 200 " status token and the "MZ" signature immediately following a
// header terminator.
func HasPrefixAt(haystack []byte, offset int, needle []byte) bool {
	if offset < 0 || offset+len(needle) > len(haystack) {
		return false
	}

	return bytes.Equal(haystack[offset:offset+len(needle)], needle)
}
