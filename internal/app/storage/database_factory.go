package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/feed-registry-server/database"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/registry"
	dbstore "github.com/stacklok/feed-registry-server/internal/registry/database"
)

// DatabaseFactory creates PostgreSQL-backed storage components.
type DatabaseFactory struct {
	pool        *pgxpool.Pool
	connString  string
	tracer      trace.Tracer
	autoMigrate bool
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the phase store.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// WithAutoMigrate applies pending migrations before the store is created.
func WithAutoMigrate(enabled bool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.autoMigrate = enabled
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
	)

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	factory := &DatabaseFactory{
		pool:       pool,
		connString: connString,
	}
	for _, opt := range opts {
		opt(factory)
	}

	return factory, nil
}

// CreatePhaseStore creates the PostgreSQL phase store, migrating first when enabled.
func (d *DatabaseFactory) CreatePhaseStore(_ context.Context) (registry.PhaseStore, error) {
	if d.autoMigrate {
		slog.Info("Applying database migrations")
		if err := database.MigrateUp(d.connString); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	opts := []dbstore.Option{dbstore.WithConnectionPool(d.pool)}
	if d.tracer != nil {
		opts = append(opts, dbstore.WithTracer(d.tracer))
		slog.Debug("Phase store tracing enabled")
	}
	return dbstore.New(opts...)
}

// CheckReadiness pings the database.
func (d *DatabaseFactory) CheckReadiness(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// Cleanup closes the connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, connString string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if lifetime := cfg.GetConnMaxLifetime(); lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	// NewWithConfig connects lazily; CheckReadiness surfaces connectivity.
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
