package search

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/vector"
)

// LexicalSearcher is the lexical branch. *lexical.Searcher satisfies it.
type LexicalSearcher interface {
	SearchWithSnippets(ctx context.Context, query string, opts lexical.Options) ([]*models.LexicalResult, error)
}

// VectorSearcher is the vector branch. *vector.Searcher satisfies it.
type VectorSearcher interface {
	Search(ctx context.Context, query string, opts vector.Options) ([]*models.VectorResult, error)
	SearchWithVector(ctx context.Context, vec []float32, opts vector.Options) ([]*models.VectorResult, error)
}

// Engine runs the lexical and vector searches concurrently and fuses their rankings.
type Engine struct {
	lexical       LexicalSearcher
	vector        VectorSearcher
	branchTimeout time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records query and branch metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithBranchTimeout bounds each branch (default 30s).
func WithBranchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.branchTimeout = d
		}
	}
}

// NewEngine creates a search engine. Either searcher may be nil; a query that enables a nil
// branch sees it fail as not initialised.
func NewEngine(lex LexicalSearcher, vec VectorSearcher, opts ...EngineOption) *Engine {
	e := &Engine{
		lexical:       lex,
		vector:        vec,
		branchTimeout: DefaultBranchTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs a fused query and returns results in fused order.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	queryID := uuid.NewString()
	logger := e.logger.With(zap.String("query_id", queryID))
	mode := opts.mode()

	var (
		lexResults []*models.LexicalResult
		vecResults []*models.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.EnableLexical {
		g.Go(func() error {
			res, err := e.runLexical(gctx, query, opts)
			if err = e.branchDone("lexical", err, opts.Fallback, logger, startTime); err != nil {
				return err
			}
			lexResults = res
			return nil
		})
	}
	if opts.EnableVector {
		g.Go(func() error {
			res, err := e.runVector(gctx, query, opts)
			if err = e.branchDone("vector", err, opts.Fallback, logger, startTime); err != nil {
				return err
			}
			vecResults = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.ObserveSearch(mode, "error", time.Since(startTime), 0)
		return nil, err
	}

	resp := &models.SearchResponse{
		QueryID: queryID,
		Query:   query,
		Results: []*models.FusedResult{},
	}
	if len(lexResults) == 0 && len(vecResults) == 0 {
		if opts.Fallback == FallbackFail {
			e.metrics.ObserveSearch(mode, "no_results", time.Since(startTime), 0)
			return nil, errs.New(errs.KindNoResults, "search", "no results from either lexical or vector search")
		}
		resp.QueryTime = time.Since(startTime).Milliseconds()
		e.metrics.ObserveSearch(mode, "ok", time.Since(startTime), 0)
		return resp, nil
	}

	fused := Fuse(Candidates(lexResults, vecResults), opts.RRFK)
	resp.Results, resp.Total = filterAndLimit(fused, opts.MinScore, opts.Limit)
	resp.QueryTime = time.Since(startTime).Milliseconds()

	logger.Debug("fused search",
		zap.String("mode", mode),
		zap.Int("lexical", len(lexResults)),
		zap.Int("vector", len(vecResults)),
		zap.Int("fused", len(fused)),
		zap.Int("returned", len(resp.Results)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	e.metrics.ObserveSearch(mode, "ok", time.Since(startTime), len(resp.Results))
	return resp, nil
}

func (e *Engine) runLexical(ctx context.Context, query string, opts Options) ([]*models.LexicalResult, error) {
	if e.lexical == nil {
		return nil, errs.New(errs.KindNotInitialized, "lexical.search", "lexical searcher is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.branchTimeout)
	defer cancel()
	return e.lexical.SearchWithSnippets(ctx, query, lexical.Options{
		Collection: opts.Collection,
		MinScore:   opts.LexicalMinScore,
		Limit:      opts.CandidateLimit,
	})
}

func (e *Engine) runVector(ctx context.Context, query string, opts Options) ([]*models.VectorResult, error) {
	if e.vector == nil {
		return nil, errs.New(errs.KindNotInitialized, "vector.search", "vector searcher is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.branchTimeout)
	defer cancel()
	vopts := vector.Options{
		Collection:    opts.Collection,
		Limit:         opts.CandidateLimit,
		MinSimilarity: opts.VectorMinSimilarity,
	}
	if opts.QueryVector != nil {
		return e.vector.SearchWithVector(ctx, opts.QueryVector, vopts)
	}
	return e.vector.Search(ctx, query, vopts)
}

// branchDone records a finished branch. Under the graceful strategy a failure is logged and
// swallowed; under the fail strategy it is returned so the errgroup cancels the other branch.
func (e *Engine) branchDone(branch string, err error, fallback Fallback, logger *zap.Logger, start time.Time) error {
	if err != nil && errs.KindOf(err) == "" && errors.Is(err, context.DeadlineExceeded) {
		err = errs.Wrap(errs.KindTimeout, branch+".search", err)
	}
	kind := ""
	if err != nil {
		kind = string(errs.KindOf(err))
		if kind == "" {
			kind = string(errs.KindQueryFailed)
		}
	}
	e.metrics.ObserveBranch(branch, kind, time.Since(start))
	if err == nil {
		return nil
	}
	if fallback == FallbackFail {
		return err
	}
	fields := []zap.Field{zap.String("branch", branch), zap.Error(err)}
	if hint := errs.HintOf(err); hint != "" {
		fields = append(fields, zap.String("hint", hint))
	}
	logger.Warn("search branch failed, continuing without it", fields...)
	return nil
}
