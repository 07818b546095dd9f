package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	registryapp "github.com/stacklok/feed-registry-server/internal/app"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	defaultAddress         = ":8080"
)

func newServeCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the feed registry API server",
		Long: `Start the feed registry API server.

The server requires a configuration file (--config) that specifies:
- The registry owner
- Phase storage (memory or database)
- The aggregator sources that may be proposed
- Access policy, event streaming and telemetry settings

Flags may also be set through FEED_REGISTRY_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, v)
		},
	}

	cmd.Flags().String("address", defaultAddress, "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().Bool("auto-migrate", false, "Apply database migrations before serving")

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

// newViper reads flags with FEED_REGISTRY_* environment fallbacks.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// runServe serves until ctx is cancelled or the server fails.
func runServe(ctx context.Context, v *viper.Viper) error {
	configPath := v.GetString("config")
	if configPath == "" {
		return fmt.Errorf("a configuration file is required (--config)")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"owner", cfg.Owner,
		"storage", cfg.GetStorageType(),
		"sources", len(cfg.Sources),
		"access_policy", cfg.Access.GetPolicy(),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry, telemetry.WithRegistryInfo(telemetry.RegistryInfo{
		Owner:   cfg.Owner,
		Storage: cfg.GetStorageType(),
		Sources: len(cfg.Sources),
	}))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []registryapp.RegistryAppOptions{
		registryapp.WithConfig(cfg),
		registryapp.WithAddress(v.GetString("address")),
		registryapp.WithAutoMigrate(v.GetBool("auto-migrate")),
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		opts = append(opts,
			registryapp.WithTracerProvider(tel.TracerProvider()),
			registryapp.WithMeterProvider(tel.MeterProvider()),
		)
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, registryapp.WithMetricsHandler(h))
	}

	registryApp, err := registryapp.NewRegistryApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build registry application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- registryApp.Start()
	}()

	select {
	case err := <-errCh:
		if stopErr := registryApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop registry application", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	return registryApp.Stop(defaultGracefulTimeout)
}
