// Package strutil provides string helpers for log previews and prompt rendering.
package strutil

import "strings"

// Truncate cuts s to at most maxLen runes and appends "..." when it was cut.
// Returns empty string if maxLen <= 0.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Preview collapses all whitespace runs into single spaces and truncates the
// result, so multi-line LLM output fits on one log line.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
