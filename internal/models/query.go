package models

import "fmt"

// SearchQuery is a hybrid search request as received by the API and CLI.
// Pointer flags distinguish "unset" from an explicit false.
type SearchQuery struct {
	Query          string  `json:"query"`
	Collection     string  `json:"collection,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	MinScore       float64 `json:"min_score,omitempty"`
	RRFK           int     `json:"rrf_k,omitempty"`
	CandidateLimit int     `json:"candidate_limit,omitempty"`
	EnableLexical  *bool   `json:"enable_lexical,omitempty"`
	EnableVector   *bool   `json:"enable_vector,omitempty"`
	Strict         bool    `json:"strict,omitempty"`
}

// Validate checks the query text and clamps the limit. Method toggles and rrf_k are left
// for the fusion engine to validate.
func (q *SearchQuery) Validate(maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// LexicalEnabled resolves the lexical toggle against a default.
func (q *SearchQuery) LexicalEnabled(def bool) bool {
	if q.EnableLexical == nil {
		return def
	}
	return *q.EnableLexical
}

// VectorEnabled resolves the vector toggle against a default.
func (q *SearchQuery) VectorEnabled(def bool) bool {
	if q.EnableVector == nil {
		return def
	}
	return *q.EnableVector
}
