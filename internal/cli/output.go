// Package cli renders search results for the kensaku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one tab-separated line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// snippetWidth caps the snippet printed under each text result.
const snippetWidth = 200

// ParseFormat validates a --output value.
func ParseFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, r := range response.Results {
			if _, err := fmt.Fprintf(w, "%d\t%.1f\t%s\t%s\n", r.Rank, r.Score, r.Path, r.Title); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeSearchResultsText(w, response)
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if len(response.Results) < response.Total {
		fmt.Fprintf(&b, " (showing %d)", len(response.Results))
	}
	b.WriteString("\n\n")
	for _, r := range response.Results {
		writeOneResult(&b, r)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeOneResult(b *strings.Builder, r *models.FusedResult) {
	b.WriteString("─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(b, "#%d  %.1f  [%s]\n", r.Rank, r.Score, sourceLabel(r))
	if r.Title != "" {
		fmt.Fprintf(b, "Title: %s\n", r.Title)
	}
	fmt.Fprintf(b, "Path:  %s\n", r.Path)
	if detail := rankDetail(r); detail != "" {
		fmt.Fprintf(b, "       %s\n", detail)
	}
	if r.Snippet != "" {
		fmt.Fprintf(b, "\n%s\n", utils.Truncate(utils.OneLine(r.Snippet), snippetWidth))
	}
	b.WriteString("\n")
}

func sourceLabel(r *models.FusedResult) string {
	switch {
	case r.InBoth():
		return "lexical+vector"
	case r.LexicalRank != nil:
		return "lexical"
	case r.VectorRank != nil:
		return "vector"
	default:
		return "-"
	}
}

func rankDetail(r *models.FusedResult) string {
	var parts []string
	if r.LexicalRank != nil {
		p := fmt.Sprintf("lexical #%d", *r.LexicalRank)
		if r.LexicalScore != nil {
			p += fmt.Sprintf(" (%.1f)", *r.LexicalScore)
		}
		parts = append(parts, p)
	}
	if r.VectorRank != nil {
		p := fmt.Sprintf("vector #%d", *r.VectorRank)
		if r.VectorScore != nil {
			p += fmt.Sprintf(" (%.1f)", *r.VectorScore)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " | ")
}
