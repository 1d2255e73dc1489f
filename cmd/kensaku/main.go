// Package main is the kensaku CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kensaku/internal/config"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "kensaku",
		Short: "Local hybrid document search",
		Long: `kensaku indexes local documents and answers queries by fusing full-text (BM25)
and semantic (embedding) rankings with Reciprocal Rank Fusion.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("kensaku version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServerCmd(flags),
		newSearchCmd(flags),
		newIndexCmd(flags),
		newDeleteCmd(flags),
		newStatusCmd(flags),
		newWatchCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config falls back to built-in defaults so the CLI works without one.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "kensaku version %s\n", version)
			return err
		},
	}
}
