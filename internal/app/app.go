// Package app provides application lifecycle management for the feed registry server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/feed-registry-server/internal/config"
)

// RegistryApp encapsulates all components needed to run the feed registry API server
// It provides lifecycle management and graceful shutdown capabilities
type RegistryApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// closers release clients created by the builder, in order
	closers []func() error
}

// Start serves HTTP until the server stops or fails.
func (app *RegistryApp) Start() error {
	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout
// It shuts down the HTTP server before releasing storage and event clients.
func (app *RegistryApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := app.httpServer.Shutdown(shutdownCtx)

	runClosers(app.closers)
	app.components.Storage.Cleanup()

	if serverErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", serverErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *RegistryApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the wired components
func (app *RegistryApp) GetComponents() *AppComponents {
	return app.components
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *RegistryApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

func runClosers(closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			slog.Warn("Failed to release resource", "error", err)
		}
	}
}
