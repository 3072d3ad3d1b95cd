// Package utils holds small helpers shared by the commands and internal packages.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to maxLen runes, appending "..." when it cuts. maxLen <= 0 disables it.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// TruncateWords keeps the first maxWords whitespace-separated words.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// CollapseSpace replaces every run of whitespace, newlines included, with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
