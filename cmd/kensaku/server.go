package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func newServerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and watch configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), flags)
		},
	}
}

func runServer(ctx context.Context, flags *rootFlags) error {
	cfg, configPath, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || flags.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", configPath),
		zap.Bool("debug", debug),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{writer: true, metrics: true})
	if err != nil {
		return err
	}
	defer components.Close()

	if !components.Embedder.Available(ctx) {
		logger.Warn("embedding provider unavailable; vector search will fail until it is reachable",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("hint", components.Embedder.InstallHint()),
		)
	}

	watchSvc := watcher.NewWatcher(cfg.Watch.Directories, components.Indexer,
		watcher.WithLogger(logger),
		watcher.WithExtensions(cfg.Watch.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithDebounce(cfg.Watch.Debounce),
	)
	if err := watchSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watchSvc.Stop()
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Store,
		&cfg.Server,
		logger,
		server.WithMetrics(components.Metrics),
		server.WithEmbedder(components.Embedder),
		server.WithVectorIndex(components.Vectors),
		server.WithSearchDefaults(searchDefaults(cfg), cfg.Search.MaxLimit),
		server.WithWatch(watchSvc, configPath, cfg),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
