package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/pkg/utils"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var (
		collection string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index files or directories",
		Long: `Index extracts, chunks and embeds the given files. Directories are walked
recursively; only files with a configured watch extension are indexed.
Unchanged files are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if collection != "" {
				cfg.Indexer.Collection = collection
			}
			logger, err := utils.NewCLILogger(cfg.Debug || flags.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			components, err := initializeComponents(cmd.Context(), cfg, logger, componentOptions{writer: true})
			if err != nil {
				return err
			}
			defer components.Close()

			summary, err := components.Indexer.IndexPaths(cmd.Context(), args, cfg.Watch.Extensions)
			if err != nil {
				return err
			}
			if err := writeIndexSummary(cmd.OutOrStdout(), summary, verbose); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d files failed to index", summary.Failed, len(summary.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "add indexed documents to this collection")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every file, not only failures")
	return cmd
}

func writeIndexSummary(w io.Writer, summary *indexer.Summary, verbose bool) error {
	for _, r := range summary.Results {
		switch {
		case r.Status == indexer.StatusFailed:
			if _, err := fmt.Fprintf(w, "failed    %s: %s\n", r.Path, r.Error); err != nil {
				return err
			}
		case verbose:
			if _, err := fmt.Fprintf(w, "%-9s %s (%d chunks)\n", r.Status, r.Path, r.Chunks); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "Indexed %d, unchanged %d, failed %d\n",
		summary.Indexed, summary.Unchanged, summary.Failed)
	return err
}
