package search

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/models"
)

// ProcessQuery validates an API or CLI query and turns it into engine options. Fields the query
// leaves unset take their value from defaults.
func ProcessQuery(query *models.SearchQuery, defaults Options, maxLimit int) (Options, error) {
	query.Query = strings.TrimSpace(query.Query)
	if err := query.Validate(maxLimit); err != nil {
		return Options{}, errs.Wrap(errs.KindInvalidOptions, "search.query", err)
	}

	opts := defaults
	opts.QueryVector = nil
	if query.Collection != "" {
		opts.Collection = query.Collection
	}
	if query.Limit > 0 {
		opts.Limit = query.Limit
	}
	if query.MinScore > 0 {
		opts.MinScore = query.MinScore
	}
	if query.RRFK != 0 {
		opts.RRFK = query.RRFK
	}
	if query.CandidateLimit > 0 {
		opts.CandidateLimit = query.CandidateLimit
	}
	opts.EnableLexical = query.LexicalEnabled(defaults.EnableLexical)
	opts.EnableVector = query.VectorEnabled(defaults.EnableVector)
	if query.Strict {
		opts.Fallback = FallbackFail
	}
	return opts, nil
}
