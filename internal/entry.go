// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/engram/internal/api"
	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/mcpserver"
	"github.com/starford/engram/internal/sse"
)

// Run starts the HTTP server for one project with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("knowledge_dir", cfg.Memory.KnowledgeDir()),
		slog.String("sqlite_path", cfg.IndexPath()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ws, err := OpenWorkspace(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	r := NewHTTPHandler(ws, broker)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index current and fan file changes out to SSE clients.
	g.Go(func() error {
		err := index.Watch(gCtx, ws.DB, ws.Store, ws.Repo.Categories(), logger, broker.PublishBlockEvent)
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// NewHTTPHandler builds the root router: health checks plus the API
// mounted under /api, with head changes and file events published through
// broker.
func NewHTTPHandler(ws *Workspace, broker *sse.Broker) http.Handler {
	cfg := ws.Config
	apiRouter := api.NewRouter(ws.Service, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Publisher:   broker,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := ws.Repo.Head(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	ws, err := OpenWorkspace(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(watchCtx)
	g.Go(func() error {
		return index.Watch(gCtx, ws.DB, ws.Store, ws.Repo.Categories(), logger, nil)
	})

	srv := mcpserver.New(ws.Service, app.version)
	logger.Info("MCP server starting", slog.String("knowledge_dir", cfg.Memory.KnowledgeDir()))
	serveErr := srv.ServeStdio()
	stopWatch()
	return errors.Join(serveErr, g.Wait())
}
