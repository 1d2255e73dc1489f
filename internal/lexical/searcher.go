package lexical

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/models"
)

// DefaultLimit is the number of results returned when Options.Limit is not set.
const DefaultLimit = 20

// Options filters and bounds a lexical search.
type Options struct {
	Collection string
	// MinScore is a minimum normalised score (0-100). Zero disables the filter.
	MinScore float64
	Limit    int
}

// Searcher runs sanitized queries against an Index and converts rows into ranked results.
type Searcher struct {
	index  Index
	logger *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// NewSearcher creates a Searcher over index.
func NewSearcher(index Index, opts ...Option) *Searcher {
	s := &Searcher{index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns ranked results without snippets.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*models.LexicalResult, error) {
	return s.search(ctx, "lexical.search", query, FieldAll, opts, false)
}

// SearchWithSnippets returns ranked results with highlighted excerpts.
func (s *Searcher) SearchWithSnippets(ctx context.Context, query string, opts Options) ([]*models.LexicalResult, error) {
	return s.search(ctx, "lexical.search_snippets", query, FieldAll, opts, true)
}

// SearchTitle matches against document titles only.
func (s *Searcher) SearchTitle(ctx context.Context, query string, opts Options) ([]*models.LexicalResult, error) {
	return s.search(ctx, "lexical.search_title", query, FieldTitle, opts, true)
}

// SearchContent matches against document bodies only.
func (s *Searcher) SearchContent(ctx context.Context, query string, opts Options) ([]*models.LexicalResult, error) {
	return s.search(ctx, "lexical.search_content", query, FieldContent, opts, true)
}

func (s *Searcher) search(ctx context.Context, op, query string, field Field, opts Options, snippets bool) ([]*models.LexicalResult, error) {
	if s == nil || s.index == nil {
		return nil, errs.New(errs.KindNotInitialized, op, "no lexical index configured")
	}
	q := SanitizeQuery(query)
	if q == "" {
		return []*models.LexicalResult{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := Request{
		Query:      q,
		Field:      field,
		Collection: opts.Collection,
		Limit:      limit,
		Snippets:   snippets,
	}
	if maxAbs, ok := DenormalizeToBM25(opts.MinScore); ok {
		req.MaxAbsScore = &maxAbs
	}

	rows, err := s.index.Query(ctx, req)
	if errors.Is(err, ErrIndexMissing) {
		s.logger.Debug("Lexical index missing, returning no results", zap.String("query", q))
		return []*models.LexicalResult{}, nil
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.KindTimeout, op, err)
		}
		return nil, errs.Wrap(errs.KindQueryFailed, op, err)
	}

	results := make([]*models.LexicalResult, 0, len(rows))
	for _, row := range rows {
		score := NormalizeBM25(row.Score)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, &models.LexicalResult{
			Hash:     row.Hash,
			Title:    row.Title,
			Content:  row.Content,
			Path:     row.Path,
			Score:    score,
			RawScore: row.Score,
			Rank:     len(results) + 1,
			Snippet:  row.Snippet,
		})
	}
	return results, nil
}
