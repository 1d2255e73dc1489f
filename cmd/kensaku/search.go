package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/pkg/utils"
)

type searchFlags struct {
	lexicalOnly bool
	vectorOnly  bool
	collection  string
	limit       int
	minScore    float64
	rrfK        int
	strict      bool
	json        bool
	output      string
	serverURL   string
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	sf := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search indexed documents",
		Long: `Search runs the lexical (BM25) and vector (embedding) searches concurrently and
fuses the two rankings. Use --lexical or --vector to run a single method.

With --server the query is sent to a running kensaku server; otherwise the index
is opened directly.`,
		Example: `  kensaku search "database migration"
  kensaku search --lexical 'auth* NOT oauth'
  kensaku search --collection notes --limit 5 --output json rate limiting`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, flags, sf, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&sf.lexicalOnly, "lexical", false, "run only the lexical (full-text) search")
	f.BoolVar(&sf.vectorOnly, "vector", false, "run only the vector (semantic) search")
	f.StringVarP(&sf.collection, "collection", "c", "", "restrict results to a collection")
	f.IntVarP(&sf.limit, "limit", "n", 0, "number of results (default from config)")
	f.Float64Var(&sf.minScore, "min-score", 0, "drop results scoring below this (0-100)")
	f.IntVar(&sf.rrfK, "rrf-k", 0, "RRF smoothing constant (default from config)")
	f.BoolVar(&sf.strict, "strict", false, "fail when either search method fails instead of degrading")
	f.BoolVar(&sf.json, "json", false, "shorthand for --output json")
	f.StringVarP(&sf.output, "output", "o", string(cli.OutputText), "output format: text, compact, or json")
	f.StringVar(&sf.serverURL, "server", "", "send the query to a running server, e.g. "+defaultServerURL)
	cmd.MarkFlagsMutuallyExclusive("lexical", "vector")
	cmd.MarkFlagsMutuallyExclusive("json", "output")
	return cmd
}

// buildSearchQuery joins positional arguments into one query string.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// toQuery converts flags into the request shared by the API and the direct path.
func (sf *searchFlags) toQuery(text string) *models.SearchQuery {
	q := &models.SearchQuery{
		Query:      text,
		Collection: sf.collection,
		Limit:      sf.limit,
		MinScore:   sf.minScore,
		RRFK:       sf.rrfK,
		Strict:     sf.strict,
	}
	if sf.lexicalOnly {
		q.EnableVector = boolPtr(false)
	}
	if sf.vectorOnly {
		q.EnableLexical = boolPtr(false)
	}
	return q
}

func (sf *searchFlags) format() (cli.SearchOutputFormat, error) {
	if sf.json {
		return cli.OutputJSON, nil
	}
	return cli.ParseFormat(sf.output)
}

func runSearch(cmd *cobra.Command, flags *rootFlags, sf *searchFlags, args []string) error {
	format, err := sf.format()
	if err != nil {
		return err
	}
	text := buildSearchQuery(args)
	if text == "" {
		return fmt.Errorf("query cannot be empty")
	}
	query := sf.toQuery(text)

	var response *models.SearchResponse
	if sf.serverURL != "" {
		response, err = searchViaHTTP(cmd.Context(), sf.serverURL, query)
	} else {
		response, err = searchDirect(cmd.Context(), flags, query)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := newAPIClient(serverURL).do(ctx, http.MethodPost, "/api/v1/search", query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func searchDirect(ctx context.Context, flags *rootFlags, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || flags.debug)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	opts, err := search.ProcessQuery(query, searchDefaults(cfg), cfg.Search.MaxLimit)
	if err != nil {
		return nil, err
	}
	response, err := components.Engine.Search(ctx, query.Query, opts)
	if err != nil {
		if hint := errs.HintOf(err); hint != "" {
			return nil, fmt.Errorf("%w\n%s", err, hint)
		}
		return nil, err
	}
	return response, nil
}

func boolPtr(b bool) *bool { return &b }
