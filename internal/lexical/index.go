// Package lexical implements full-text search over a pluggable lexical index, normalising
// BM25-style relevance into a 0-100 display score.
package lexical

import (
	"context"
	"errors"
)

// ErrIndexMissing is returned by an Index whose underlying full-text structure has not been
// built yet. Searchers treat it as an empty result.
var ErrIndexMissing = errors.New("lexical index does not exist")

// Field restricts a query to one indexed column.
type Field string

const (
	FieldAll     Field = ""
	FieldTitle   Field = "title"
	FieldContent Field = "content"
)

// Request is a sanitized query issued to an Index.
type Request struct {
	Query      string
	Field      Field
	Collection string
	// MaxAbsScore drops rows whose |raw score| exceeds it. Nil means no filter.
	MaxAbsScore *float64
	Limit       int
	Snippets    bool
}

// Row is one match as reported by an Index. Score follows the FTS5 bm25 convention:
// negative, more negative is better.
type Row struct {
	Hash    string
	Title   string
	Content string
	Path    string
	Score   float64
	Snippet string
}

// Index is a full-text index over active documents.
// Rows must be ordered by Score ascending and restricted to active documents (and to the
// request's collection when one is set).
type Index interface {
	Query(ctx context.Context, req Request) ([]Row, error)
}

// Snippet markup used by indexes that support highlighting.
const (
	HighlightOpen  = "<mark>"
	HighlightClose = "</mark>"
	Ellipsis       = "…"
	SnippetTokens  = 32
)
