package indexer

import (
	"strings"
)

// Preprocess normalizes text for indexing: CRLF and CR line endings become LF, trailing
// whitespace is removed from each line, runs of blank lines collapse to one, and the result is
// trimmed. Paragraph breaks survive so the chunker can still split on them.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	var b strings.Builder
	b.Grow(len(text))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}
