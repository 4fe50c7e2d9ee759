// Package app runs the HTTP API and the background scheduler under one
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/healingspace/healingspace/internal/config"
)

// BackgroundRunner is a component started alongside the server and stopped
// on shutdown, such as the task scheduler.
type BackgroundRunner interface {
	Start(ctx context.Context) error
	Stop() error
}

// App owns the HTTP server and the background runner.
type App struct {
	logger    *slog.Logger
	cfg       config.ServerConfig
	server    *http.Server
	scheduler BackgroundRunner
}

// New creates an App serving handler with the timeouts from cfg. scheduler
// may be nil.
func New(logger *slog.Logger, cfg config.ServerConfig, handler http.Handler, scheduler BackgroundRunner) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		logger: logger.With("component", "app"),
		cfg:    cfg,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
		scheduler: scheduler,
	}
}

// Run listens on the configured address and blocks until ctx is cancelled
// or a component fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("Starting application...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", "error", err)
			return fmt.Errorf("http server: %w", err)
		}
		a.logger.Info("HTTP server stopped.")
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("Shutting down HTTP server...", "timeout", a.cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if a.scheduler != nil {
		g.Go(func() error {
			a.logger.Info("Starting scheduler...")
			if err := a.scheduler.Start(gCtx); err != nil {
				a.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("scheduler start failed: %w", err)
			}
			<-gCtx.Done()
			a.logger.Info("Stopping scheduler...")
			if err := a.scheduler.Stop(); err != nil {
				a.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped with error", "error", err)
		return err
	}
	a.logger.Info("Application stopped.")
	return nil
}
