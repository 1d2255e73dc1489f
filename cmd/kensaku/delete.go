package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/pkg/utils"
)

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "delete <path|hash>",
		Short: "Remove a document from the index",
		Long: `Delete removes the document at a path from search results. Its stored versions
are kept unless --purge is given. An argument that is not a path is treated as a
document hash and always deleted outright.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := utils.NewCLILogger(cfg.Debug || flags.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			components, err := initializeComponents(ctx, cfg, logger, componentOptions{writer: true})
			if err != nil {
				return err
			}
			defer components.Close()

			out := cmd.OutOrStdout()
			target := args[0]
			if !looksLikePath(target) {
				if err := components.Indexer.DeleteDocument(ctx, target); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("no document with hash %s", target)
					}
					return err
				}
				_, err := fmt.Fprintf(out, "Document deleted: %s\n", target)
				return err
			}

			path, err := filepath.Abs(target)
			if err != nil {
				return err
			}
			if purge {
				doc, err := components.Store.GetActiveDocument(ctx, path)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("%s is not indexed", path)
				}
				if err != nil {
					return err
				}
				if err := components.Indexer.DeleteDocument(ctx, doc.Hash); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "Document deleted: %s (%s)\n", path, doc.Hash)
				return err
			}
			removed, err := components.Indexer.RemovePath(ctx, path)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not indexed", path)
			}
			_, err = fmt.Fprintf(out, "Removed from index: %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "delete the stored document instead of deactivating it")
	return cmd
}

// looksLikePath reports whether arg names a file rather than a document hash.
func looksLikePath(arg string) bool {
	if filepath.IsAbs(arg) || filepath.Base(arg) != arg || filepath.Ext(arg) != "" {
		return true
	}
	_, err := os.Stat(arg)
	return err == nil
}
