package search

import (
	"fmt"
	"time"

	"github.com/hyperjump/kensaku/internal/errs"
)

// Fallback decides what happens when a search branch fails.
type Fallback string

const (
	// FallbackGraceful logs a failed branch and fuses whatever the other branch returned.
	FallbackGraceful Fallback = "graceful"
	// FallbackFail aborts the query on the first branch error.
	FallbackFail Fallback = "fail"
)

const (
	DefaultLimit          = 10
	DefaultRRFK           = 60
	DefaultCandidateLimit = 20
	DefaultBranchTimeout  = 30 * time.Second
)

// Options controls one fused search.
type Options struct {
	Collection string
	Limit      int
	// MinScore drops fused results whose normalised score (0-100) is below it.
	MinScore       float64
	RRFK           int
	CandidateLimit int
	EnableLexical  bool
	EnableVector   bool
	Fallback       Fallback

	// LexicalMinScore and VectorMinSimilarity are passed to the branches.
	LexicalMinScore     float64
	VectorMinSimilarity float64

	// QueryVector skips embedding and runs the vector branch with this vector.
	QueryVector []float32
}

// DefaultOptions returns hybrid search with the standard limits.
func DefaultOptions() Options {
	return Options{
		Limit:          DefaultLimit,
		RRFK:           DefaultRRFK,
		CandidateLimit: DefaultCandidateLimit,
		EnableLexical:  true,
		EnableVector:   true,
		Fallback:       FallbackGraceful,
	}
}

// Validate rejects contradictory options. Unset limits are filled in, an explicit RRFK <= 0 is not.
func (o *Options) Validate() error {
	const op = "search.options"
	if !o.EnableLexical && !o.EnableVector {
		return errs.New(errs.KindInvalidOptions, op, "at least one of lexical or vector search must be enabled")
	}
	if o.RRFK <= 0 {
		return errs.New(errs.KindInvalidOptions, op, fmt.Sprintf("rrf_k must be positive, got %d", o.RRFK))
	}
	switch o.Fallback {
	case "":
		o.Fallback = FallbackGraceful
	case FallbackGraceful, FallbackFail:
	default:
		return errs.New(errs.KindInvalidOptions, op, fmt.Sprintf("unknown fallback strategy %q", o.Fallback))
	}
	if o.MinScore < 0 || o.MinScore > 100 {
		return errs.New(errs.KindInvalidOptions, op, fmt.Sprintf("min_score must be within 0-100, got %g", o.MinScore))
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.CandidateLimit < o.Limit {
		o.CandidateLimit = o.Limit
	}
	return nil
}

// mode names the enabled branches for logs and metrics.
func (o *Options) mode() string {
	switch {
	case o.EnableLexical && o.EnableVector:
		return "hybrid"
	case o.EnableLexical:
		return "lexical"
	default:
		return "vector"
	}
}
