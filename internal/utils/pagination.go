// Package utils holds small helpers shared across layers, mainly for
// parsing and bounding pagination query parameters.
package utils

import "strconv"

// AtoiDefault parses s as an int, falling back to def when s is empty or
// unparseable. Query-string parsing never needs to distinguish the two.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
