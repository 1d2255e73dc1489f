package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/storage"
)

// statusConfig mirrors the config block of GET /api/v1/status.
type statusConfig struct {
	VectorIndexType     string  `json:"vector_index_type"`
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingModel      string  `json:"embedding_model,omitempty"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	LexicalBackend      string  `json:"lexical_backend"`
	ChunkMaxTokens      int     `json:"chunk_max_tokens"`
	ChunkOverlap        float64 `json:"chunk_overlap_percent"`
	RRFK                int     `json:"rrf_k"`
	DatabasePath        string  `json:"database_path"`
}

// statusResponse mirrors GET /api/v1/status.
type statusResponse struct {
	storage.Stats
	VectorIndexSize int           `json:"vector_index_size"`
	DiskUsageBytes  *int64        `json:"disk_usage_bytes,omitempty"`
	Config          *statusConfig `json:"config,omitempty"`
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var (
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("unknown output format %q; use text or json", output)
			}
			var (
				status *statusResponse
				err    error
			)
			if serverURL != "" {
				status = &statusResponse{}
				err = newAPIClient(serverURL).do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, status)
			} else {
				status, err = statusDirect(cmd.Context(), flags)
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			return writeStatusText(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "query a running server, e.g. "+defaultServerURL)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

// statusDirect reads the store without starting an embedder or loading vectors.
func statusDirect(ctx context.Context, flags *rootFlags) (*statusResponse, error) {
	cfg, _, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath, storage.WithDriver(cfg.Storage.Driver))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status := &statusResponse{
		Stats:           *stats,
		VectorIndexSize: int(stats.Vectors),
		Config:          newStatusConfig(cfg),
	}
	var indexDirs []string
	if cfg.Storage.LexicalBackend == config.LexicalBleve {
		indexDirs = append(indexDirs, cfg.Storage.BleveIndexPath)
	}
	if n, err := storage.Footprint(cfg.Storage.DatabasePath, indexDirs...); err == nil {
		status.DiskUsageBytes = &n
	}
	return status, nil
}

func newStatusConfig(cfg *config.Config) *statusConfig {
	return &statusConfig{
		VectorIndexType:     cfg.Vector.IndexType,
		EmbeddingProvider:   cfg.Embedding.Provider,
		EmbeddingModel:      cfg.Embedding.Model,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		LexicalBackend:      cfg.Storage.LexicalBackend,
		ChunkMaxTokens:      cfg.Chunking.MaxTokens,
		ChunkOverlap:        cfg.Chunking.OverlapPercent,
		RRFK:                cfg.Search.RRFK,
		DatabasePath:        cfg.Storage.DatabasePath,
	}
}

func writeStatusText(w io.Writer, s *statusResponse) error {
	lines := []string{
		fmt.Sprintf("documents:          %d   # active documents", s.ActiveDocuments),
		fmt.Sprintf("inactive:           %d   # superseded or removed versions", s.InactiveDocuments),
		fmt.Sprintf("chunks:             %d", s.Chunks),
		fmt.Sprintf("vectors:            %d   # stored chunk embeddings", s.Vectors),
		fmt.Sprintf("vector_index_size:  %d", s.VectorIndexSize),
		fmt.Sprintf("collections:        %d", s.Collections),
		fmt.Sprintf("full_text_index:    %t", s.FullTextIndex),
	}
	if s.DiskUsageBytes != nil {
		lines = append(lines, fmt.Sprintf("disk_usage_bytes:   %d", *s.DiskUsageBytes))
	}
	if c := s.Config; c != nil {
		lines = append(lines,
			"",
			"# configuration",
			fmt.Sprintf("vector_index_type:  %s", c.VectorIndexType),
			fmt.Sprintf("embedding:          %s %s (%d dims)", c.EmbeddingProvider, c.EmbeddingModel, c.EmbeddingDimensions),
			fmt.Sprintf("lexical_backend:    %s", c.LexicalBackend),
			fmt.Sprintf("chunking:           %d tokens, %.0f%% overlap", c.ChunkMaxTokens, c.ChunkOverlap*100),
			fmt.Sprintf("rrf_k:              %d", c.RRFK),
			fmt.Sprintf("database_path:      %s", c.DatabasePath),
		)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
