// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/zest/internal/apperr"
	"github.com/starford/zest/internal/index"
	"github.com/starford/zest/internal/mcpserver"
	"github.com/starford/zest/internal/noteservice"
	"github.com/starford/zest/internal/pipeline"
	"github.com/starford/zest/internal/vault"
)

// App is the wired application: logger, index and note service.
type App struct {
	Logger  *slog.Logger
	Service *noteservice.Service

	store   *index.Store
	version string
}

// New builds the application from options. The caller must Close it.
func New(opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stderr, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	level := cfg.App.LogLevel
	switch {
	case app.verbosity >= 2:
		level = slog.LevelDebug
	case app.verbosity == 1 && level > slog.LevelInfo:
		level = slog.LevelInfo
	}

	// Structured JSON logs on stderr; stdout carries command output.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	indexPath, err := cfg.Index.ResolvedPath()
	if err != nil {
		return nil, fmt.Errorf("resolve index path: %w", err)
	}

	logger.Debug("Configuration loaded",
		slog.String("index_path", indexPath),
		slog.String("roots", strings.Join(cfg.Vault.Paths, ",")),
		slog.String("log_level", level.String()))

	if _, err := vault.CanonicalRoots(cfg.Vault.Paths); err != nil {
		logger.Warn("note root unavailable", slog.String("error", err.Error()))
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	store, err := index.Open(indexPath)
	if err != nil {
		if !app.recreate || !errors.Is(err, apperr.ErrIndexCorrupt) {
			return nil, fmt.Errorf("init index: %w", err)
		}
		logger.Warn("index corrupt, recreating", slog.String("path", indexPath), slog.String("error", err.Error()))
		if store, err = index.Recreate(indexPath); err != nil {
			return nil, fmt.Errorf("recreate index: %w", err)
		}
	}

	pipe := pipeline.New(store,
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.Vault.Workers),
		pipeline.WithExtensions(cfg.Vault.Extensions...),
	)

	var ext string
	if len(cfg.Vault.Extensions) > 0 {
		ext = cfg.Vault.Extensions[0]
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
	}
	svc := noteservice.NewService(store, pipe, cfg.Vault.Paths,
		noteservice.WithLogger(logger),
		noteservice.WithExtension(ext),
	)

	return &App{Logger: logger, Service: svc, store: store, version: app.version}, nil
}

// Close releases the index.
func (a *App) Close() error {
	return a.store.Close()
}

// Run builds the application, runs fn with it and closes it. The context
// passed to fn is cancelled on SIGINT or SIGTERM.
func Run(ctx context.Context, fn func(context.Context, *App) error, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

// ServeMCP serves MCP over in/out while an initial update pass runs in the
// background.
func (a *App) ServeMCP(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := mcpserver.New(a.Service, a.version)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sum, err := a.Service.Update(gCtx)
		if err != nil {
			a.Logger.Warn("initial update failed", slog.String("error", err.Error()))
			return nil
		}
		a.Logger.Info("initial update done",
			slog.Int("indexed", sum.Indexed),
			slog.Int("updated", sum.Updated),
			slog.Int("removed", sum.Removed))
		return nil
	})

	g.Go(func() error {
		a.Logger.Info("Starting MCP server on stdio")
		if err := srv.Serve(gCtx, in, out); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	a.Logger.Info("MCP server stopped")
	return nil
}
