// Package utils holds small parsing helpers shared by the HTTP layer.
package utils

import (
	"strconv"
	"strings"
)

// IntInRange parses s as an int. Empty or malformed input yields def, and
// the result is clamped to [lo, hi].
//
//	utils.IntInRange("500", 20, 1, 100) // 100
//	utils.IntInRange("", 20, 1, 100)    // 20
func IntInRange(s string, def, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		n = def
	}
	return max(lo, min(n, hi))
}
