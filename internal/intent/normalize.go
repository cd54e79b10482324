package intent

import "strings"

// Normalize lowercases s, collapses runs of whitespace to single spaces, and
// strips trailing sentence punctuation. Used for agreement comparison and
// for the duplicate filter's pattern keys.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".,!?;:")
}

// CollapseWhitespace trims s and collapses internal whitespace runs without
// changing case or punctuation.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
