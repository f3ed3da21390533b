package utils

import (
	"strings"
	"unicode/utf8"
)

// Clip bounds s to at most maxRunes runes without splitting a multi-byte
// character, trimming any whitespace left at the cut.
func Clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	n := 0
	for i := range s {
		if n == maxRunes {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return s
}

// CollapseWhitespace replaces every run of whitespace with a single space and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
