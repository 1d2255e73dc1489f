package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kensaku/internal/lexical"
)

// Query runs a full-text query against the FTS5 table. bm25() scores are negative and
// more negative is better, so rows are ordered ascending.
func (s *SQLiteStore) Query(ctx context.Context, req lexical.Request) ([]lexical.Row, error) {
	if !s.fts {
		return nil, lexical.ErrIndexMissing
	}

	var sb strings.Builder
	var args []any
	sb.WriteString(`SELECT d.hash, d.title, d.content, d.path, bm25(documents_fts) AS score, `)
	if req.Snippets {
		sb.WriteString(`snippet(documents_fts, 2, ?, ?, ?, ?)`)
		args = append(args, lexical.HighlightOpen, lexical.HighlightClose, lexical.Ellipsis, lexical.SnippetTokens)
	} else {
		sb.WriteString(`''`)
	}
	sb.WriteString(` FROM documents_fts JOIN documents d ON d.hash = documents_fts.hash`)
	if req.Collection != "" {
		sb.WriteString(` JOIN collection_documents cd ON cd.hash = d.hash AND cd.collection = ?`)
		args = append(args, req.Collection)
	}
	sb.WriteString(` WHERE documents_fts MATCH ? AND d.active = 1`)
	args = append(args, matchExpression(req))
	if req.MaxAbsScore != nil {
		sb.WriteString(` AND abs(bm25(documents_fts)) <= ?`)
		args = append(args, *req.MaxAbsScore)
	}
	sb.WriteString(` ORDER BY score LIMIT ?`)
	limit := req.Limit
	if limit <= 0 {
		limit = lexical.DefaultLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: %v", lexical.ErrIndexMissing, err)
		}
		return nil, err
	}
	defer rows.Close()

	var out []lexical.Row
	for rows.Next() {
		var r lexical.Row
		if err := rows.Scan(&r.Hash, &r.Title, &r.Content, &r.Path, &r.Score, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// matchExpression applies the request's column filter to its query.
func matchExpression(req lexical.Request) string {
	if req.Field == lexical.FieldAll {
		return req.Query
	}
	return string(req.Field) + " : (" + req.Query + ")"
}
