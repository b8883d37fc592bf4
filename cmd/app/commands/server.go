package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/healthsync/internal/app"
	"github.com/allisson/healthsync/internal/config"
	apphttp "github.com/allisson/healthsync/internal/http"
)

// RunServer starts the HTTP server, the outbox processor and the push watcher, or the status
// poller alone when no push transport is configured.
// Blocks until receiving SIGINT/SIGTERM or encountering a fatal error. On shutdown
// signal, gracefully stops the servers within DBConnMaxLifetime timeout.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	processor, err := container.Processor()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox processor: %w", err)
	}

	watcher, err := container.Watcher()
	if err != nil {
		return fmt.Errorf("failed to initialize push watcher: %w", err)
	}

	poller, err := container.Poller()
	if err != nil {
		return fmt.Errorf("failed to initialize status poller: %w", err)
	}

	sess, err := container.Session()
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 4)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErr <- fmt.Errorf("outbox processor error: %w", err)
		}
	}()

	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				serverErr <- fmt.Errorf("push watcher error: %w", err)
			}
		}()
	} else {
		logger.Info("push transport disabled, polling remote status")
		go func() {
			if err := poller.Run(ctx, sess); err != nil && !errors.Is(err, context.Canceled) {
				serverErr <- fmt.Errorf("status poller error: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownServers(cfg, server, metricsServer, nil)
	case err := <-serverErr:
		// Attempt graceful shutdown if one component fails
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		cancel()
		return shutdownServers(cfg, server, metricsServer, err)
	}
}

// shutdownServers stops the API and metrics servers and joins their errors with cause.
func shutdownServers(
	cfg *config.Config,
	server *apphttp.Server,
	metricsServer *apphttp.MetricsServer,
	cause error,
) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	var shutdownErrors []error
	if cause != nil {
		shutdownErrors = append(shutdownErrors, cause)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}
