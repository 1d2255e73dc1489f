package search

import (
	"strings"
	"unicode/utf8"
)

// SnippetLength is the number of characters kept when a snippet is synthesized from content.
const SnippetLength = 200

// Highlight truncates content to maxLen characters and appends "..." when anything was cut.
// Whitespace runs are collapsed so multi-line content reads as one line.
func Highlight(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return content
	}
	n := 0
	for i := range content {
		if n == maxLen {
			return content[:i] + "..."
		}
		n++
	}
	return content
}
