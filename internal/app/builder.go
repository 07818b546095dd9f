package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api"
	"github.com/stacklok/feed-registry-server/internal/app/storage"
	"github.com/stacklok/feed-registry-server/internal/auth"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/registry"
	dbstore "github.com/stacklok/feed-registry-server/internal/registry/database"
	"github.com/stacklok/feed-registry-server/internal/source"
	"github.com/stacklok/feed-registry-server/internal/source/httpsource"
	"github.com/stacklok/feed-registry-server/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// RegistryAppOptions is a function that configures the registry app builder
type RegistryAppOptions func(*registryAppConfig) error

// registryAppConfig supports dependency injection for testing while providing
// defaults for production.
type registryAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	resolver       source.Resolver
	redisClient    redis.UniversalClient

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	autoMigrate bool

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...RegistryAppOptions) (*registryAppConfig, error) {
	cfg := &registryAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewRegistryApp wires storage, sources, access policies, events and the HTTP
// server from configuration.
func NewRegistryApp(
	ctx context.Context,
	opts ...RegistryAppOptions,
) (*RegistryApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = buildStorageFactory(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	var closers []func() error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			runClosers(closers)
			cfg.storageFactory.Cleanup()
		}
	}()

	store, err := cfg.storageFactory.CreatePhaseStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create phase store: %w", err)
	}

	eventLog, publisher, closeEvents, err := buildEventComponents(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build event components: %w", err)
	}
	if closeEvents != nil {
		closers = append(closers, closeEvents)
	}

	owned, err := ownership.New(cfg.config.Owner, events.OwnershipNotifier(publisher, registry.Emitter))
	if err != nil {
		return nil, fmt.Errorf("failed to create registry ownership: %w", err)
	}

	policies, activePolicy, err := buildAccessPolicies(ctx, cfg.config, owned, publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to build access policies: %w", err)
	}

	if cfg.config.Access != nil && cfg.config.Access.WatchPolicyFile {
		cedarPolicy, _ := policies[config.AccessPolicyCedar].(*access.CedarPolicy)
		watcher, err := startPolicyWatcher(cfg.config.Access.CedarPolicyFile, cedarPolicy)
		if err != nil {
			return nil, fmt.Errorf("failed to watch cedar policy file: %w", err)
		}
		closers = append(closers, watcher.Close)
	}

	if cfg.resolver == nil {
		cfg.resolver, err = buildResolver(cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to build source resolver: %w", err)
		}
	}

	reg, err := buildRegistry(cfg, store, owned, publisher, activePolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	facades, err := buildFacades(ctx, cfg.config, reg, policies, publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to build facades: %w", err)
	}

	components := &AppComponents{
		Registry: reg,
		EventLog: eventLog,
		Policies: policies,
		Storage:  cfg.storageFactory,
		Facades:  facades,
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	cleanupNeeded = false

	return &RegistryApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		closers:    closers,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("address is not a valid host:port: %w", err)
		}
		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}
		if host != "" && host != "localhost" && net.ParseIP(host) == nil {
			return fmt.Errorf("address host must be an IP or localhost: %s", host)
		}

		cfg.address = addr
		return nil
	}
}

// isLoopbackAddress reports whether addr only accepts local connections.
// An empty host listens on every interface.
func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithResolver replaces the resolver built from the configured sources.
func WithResolver(r source.Resolver) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.resolver = r
		return nil
	}
}

// WithRedisClient replaces the client built from events.redis. The caller keeps
// ownership of the client.
func WithRedisClient(c redis.UniversalClient) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.redisClient = c
		return nil
	}
}

// WithAutoMigrate applies database migrations at startup.
func WithAutoMigrate(enabled bool) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.autoMigrate = enabled
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for registry and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for HTTP, registry and database spans
func WithTracerProvider(tp trace.TracerProvider) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

func buildStorageFactory(ctx context.Context, b *registryAppConfig) (storage.Factory, error) {
	if b.config.GetStorageType() != config.StorageTypeDatabase {
		return storage.NewStorageFactory(ctx, b.config)
	}

	dbOpts := []storage.DatabaseFactoryOption{storage.WithAutoMigrate(b.autoMigrate)}
	if b.tracerProvider != nil {
		dbOpts = append(dbOpts, storage.WithTracer(b.tracerProvider.Tracer(dbstore.TracerName)))
	}
	return storage.NewDatabaseFactory(ctx, b.config, dbOpts...)
}

// buildEventComponents creates the in-memory log, plus the Redis stream sink
// when configured. The returned closer is nil unless a client was created here.
func buildEventComponents(b *registryAppConfig) (*events.Log, *events.Publisher, func() error, error) {
	eventLog := events.NewLog()
	sinks := []events.Sink{eventLog}

	var closer func() error
	if b.config.Events != nil && b.config.Events.Redis != nil {
		redisCfg := b.config.Events.Redis
		client := b.redisClient
		if client == nil {
			password, err := redisCfg.GetPassword()
			if err != nil {
				return nil, nil, nil, err
			}
			rc := redis.NewClient(&redis.Options{
				Addr:     redisCfg.Address,
				Password: password,
				DB:       redisCfg.DB,
			})
			client = rc
			closer = rc.Close
		}
		sinks = append(sinks, events.NewRedisSink(client, redisCfg.GetStream(), redisCfg.MaxLen))
		slog.Info("Publishing events to Redis stream",
			"address", redisCfg.Address,
			"stream", redisCfg.GetStream(),
		)
	}

	return eventLog, events.NewPublisher(sinks...), closer, nil
}

func buildResolver(cfg *config.Config) (source.Resolver, error) {
	resolver := source.NewStaticResolver()
	for _, sc := range cfg.Sources {
		src, err := httpsource.New(sc.Endpoint, httpsource.WithTimeout(sc.GetTimeout()))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Address, err)
		}
		resolver.Register(sc.Address, src)
		slog.Info("Registered source", "address", sc.Address, "endpoint", sc.Endpoint)
	}
	if resolver.Len() == 0 {
		slog.Warn("No sources configured, every proposal will be rejected")
	}
	return resolver, nil
}

func buildRegistry(
	b *registryAppConfig,
	store registry.PhaseStore,
	owned *ownership.Owned,
	publisher *events.Publisher,
	policy access.Policy,
) (*registry.Registry, error) {
	regOpts := []registry.Option{
		registry.WithOwnership(owned),
		registry.WithPublisher(publisher),
		registry.WithAccessPolicy(policy),
	}

	if b.tracerProvider != nil {
		regOpts = append(regOpts, registry.WithTracerProvider(b.tracerProvider))
	}

	if b.meterProvider != nil {
		registryMetrics, err := telemetry.NewRegistryMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create registry metrics: %w", err)
		}
		sourceMetrics, err := telemetry.NewSourceMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create source metrics: %w", err)
		}
		regOpts = append(regOpts,
			registry.WithMetrics(registryMetrics),
			registry.WithSourceMetrics(sourceMetrics),
		)
		slog.Info("Registry metrics enabled")
	}

	return registry.New(b.config.Owner, store, b.resolver, regOpts...)
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(ctx context.Context, b *registryAppConfig, components *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	authMw, authInfo, err := auth.NewAuthMiddleware(ctx, b.config.Auth, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}
	if b.config.Auth.GetMode() == config.AuthModeHeader && !isLoopbackAddress(b.address) {
		slog.Warn("Caller header is trusted on a non-loopback address, any client can act as the owner",
			"address", b.address,
			"header", auth.CallerHeader)
	}

	if b.middlewares == nil {
		// Caller identity is resolved before the request is logged.
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			authMw,
			api.LoggingMiddleware,
		}
	} else {
		b.middlewares = append(b.middlewares, authMw)
	}

	// Telemetry goes first so rejected and timed out requests are observed too.
	var telemetryMiddlewares []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		telemetryMiddlewares = append(telemetryMiddlewares, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		telemetryMiddlewares = append(telemetryMiddlewares, metricsMiddleware)
		slog.Info("HTTP metrics middleware enabled")
	}
	b.middlewares = append(telemetryMiddlewares, b.middlewares...)

	router := api.NewServer(components.Registry,
		api.WithMiddlewares(b.middlewares...),
		api.WithReadinessChecker(components.Storage),
		api.WithEventLog(components.EventLog),
		api.WithPolicies(components.Policies),
		api.WithFacades(components.Facades),
		api.WithMetricsHandler(b.metricsHandler),
		api.WithAuthInfoHandler(authInfo),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
