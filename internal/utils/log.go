package utils

import "strings"

// TruncateForLog keeps at most limit runes of the trimmed s and marks the cut
// with "...". A non-positive limit yields an empty string.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
