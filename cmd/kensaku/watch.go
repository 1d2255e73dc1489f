package main

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the directories a running server watches",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL, "server URL")

	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Watch a directory and index its existing files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			body := map[string]any{"path": path, "sync": true}
			if err := newAPIClient(serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/watch/directories", body, nil); err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
			return err
		},
	}

	remove := &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop watching a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			endpoint := "/api/v1/watch/directories?path=" + url.QueryEscape(path)
			if err := newAPIClient(serverURL).do(cmd.Context(), http.MethodDelete, endpoint, nil, nil); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
			return err
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List watched directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Directories []string `json:"directories"`
			}
			if err := newAPIClient(serverURL).do(cmd.Context(), http.MethodGet, "/api/v1/watch/directories", nil, &out); err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			for _, d := range out.Directories {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), d); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
