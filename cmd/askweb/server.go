package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/askweb/internal/api"
	"github.com/kalambet/askweb/internal/completion"
	"github.com/kalambet/askweb/internal/config"
	"github.com/kalambet/askweb/internal/pipeline"
	"github.com/kalambet/askweb/internal/search"
	"github.com/kalambet/askweb/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildPipeline opens the store and wires both providers behind circuit
// breakers. The caller owns the returned store.
func buildPipeline(cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, storage.Store, error) {
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	if cfg.Search.APIKey == "" {
		logger.Warn("TAVILY_API_KEY is not set; searches will fail until it is configured")
	}
	if cfg.Completion.APIKey == "" {
		logger.Warn("DEEPSEEK_API_KEY is not set; searches will fail until it is configured")
	}

	breakerCfg := pipeline.BreakerConfig{
		MaxFailures: uint32(cfg.Breaker.MaxFailures),
		Timeout:     cfg.Breaker.Timeout,
	}

	searcher := pipeline.GuardSearcher(
		search.NewClient(cfg.Search.APIKey, search.Options{
			BaseURL:    cfg.Search.BaseURL,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.Search.Timeout,
		}),
		breakerCfg, logger,
	)
	completer := pipeline.GuardCompleter(
		completion.NewClient(cfg.Completion.APIKey, completion.Options{
			BaseURL:     cfg.Completion.BaseURL,
			Model:       cfg.Completion.Model,
			Temperature: &cfg.Completion.Temperature,
			MaxTokens:   cfg.Completion.MaxTokens,
			Timeout:     cfg.Completion.Timeout,
		}),
		breakerCfg, logger,
	)

	return pipeline.New(store, searcher, completer, logger), store, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("askweb starting", "version", version, "storage", cfg.Storage.Backend)

	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewHandler(api.Deps{
			Searches:    p,
			Logger:      logger,
			CORSOrigins: cfg.Server.Origins(),
			Token:       cfg.Server.Token,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("askweb listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs must stay on stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Searches: p, Version: version})
	stdioSrv := server.NewStdioServer(mcpSrv)
	logger.Info("MCP server started (stdio transport)")

	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
