package lexical

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

var (
	booleanOperator = regexp.MustCompile(`(^|\s)(AND|OR|NOT)(\s|$)`)
	fieldPrefix     = regexp.MustCompile(`(^|\s)(title|content)\s*:`)
)

// HasExplicitSyntax reports whether the query already uses full-text query syntax:
// quotes, wildcards, upper-case boolean operators or a title: or content: prefix.
func HasExplicitSyntax(query string) bool {
	if strings.ContainsAny(query, `"*?`) {
		return true
	}
	return booleanOperator.MatchString(query) || fieldPrefix.MatchString(query)
}

// SanitizeQuery prepares free text for the full-text engine. Queries with explicit syntax
// are trusted and only trimmed. Otherwise ASCII punctuation, which FTS5 rejects outside
// its own operators, is replaced with spaces and whitespace is collapsed.
func SanitizeQuery(query string) string {
	if HasExplicitSyntax(query) {
		return strings.TrimSpace(query)
	}
	cleaned := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && r != '_' && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			return ' '
		}
		return r
	}, query)
	return strings.Join(strings.Fields(cleaned), " ")
}

// NormalizeBM25 maps a raw BM25 score (negative, more negative is better) onto 0-100.
// The scale is only comparable within one result set.
func NormalizeBM25(raw float64) float64 {
	return 1 / (1 + math.Abs(raw)) * 100
}

// DenormalizeToBM25 converts a minimum display score into the largest raw magnitude that
// still satisfies it. ok is false when minScore disables filtering.
func DenormalizeToBM25(minScore float64) (maxAbs float64, ok bool) {
	switch {
	case minScore <= 0:
		return 0, false
	case minScore >= 100:
		return 0, true
	default:
		return 100/minScore - 1, true
	}
}
