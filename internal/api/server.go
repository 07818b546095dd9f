// Package api provides the REST API server of the feed registry.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api/common"
	"github.com/stacklok/feed-registry-server/internal/auth"
	v1 "github.com/stacklok/feed-registry-server/internal/api/v1"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/facade"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/versions"
)

// ReadinessChecker reports whether a backing component can serve requests.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ServerOption configures the registry API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	readiness      []ReadinessChecker
	log            *events.Log
	policies       map[string]access.Policy
	metricsHandler http.Handler
	authInfo       http.Handler
	facades        map[string]*facade.AccessControlledFacade
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithReadinessChecker adds a component consulted by /readiness.
func WithReadinessChecker(c ReadinessChecker) ServerOption {
	return func(cfg *serverConfig) {
		if c != nil {
			cfg.readiness = append(cfg.readiness, c)
		}
	}
}

// WithEventLog serves the notification log at /v1/events.
func WithEventLog(log *events.Log) ServerOption {
	return func(cfg *serverConfig) {
		cfg.log = log
	}
}

// WithPolicies registers the access policies selectable by name.
func WithPolicies(policies map[string]access.Policy) ServerOption {
	return func(cfg *serverConfig) {
		cfg.policies = policies
	}
}

// WithFacades serves the named single-pair facades under /v1/facades.
func WithFacades(facades map[string]*facade.AccessControlledFacade) ServerOption {
	return func(cfg *serverConfig) {
		cfg.facades = facades
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithAuthInfoHandler serves the protected resource metadata.
func WithAuthInfoHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.authInfo = h
	}
}

// NewServer creates and configures the HTTP router for reg.
func NewServer(reg *registry.Registry, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler(reg))
	r.Get("/readiness", readinessHandler(reg, cfg.readiness))
	r.Get("/version", versionHandler(reg))
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}
	if cfg.authInfo != nil {
		r.Handle(auth.WellKnownPath, cfg.authInfo)
	}

	r.Mount("/v1", v1.Router(v1.NewRoutes(reg, cfg.log, cfg.policies).WithFacades(cfg.facades)))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"caller", common.Caller(r),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSONResponse(w, HealthResponse{Status: "healthy", Registry: reg.TypeAndVersion()}, http.StatusOK)
	}
}

// readinessHandler consults every checker, then lists the served pairs so a
// phase store that cannot answer queries is reported as not ready.
func readinessHandler(reg *registry.Registry, checkers []ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checkers {
			if err := c.CheckReadiness(r.Context()); err != nil {
				common.WriteErrorResponse(w, "registry not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		pairs, err := reg.Pairs(r.Context())
		if err != nil {
			common.WriteErrorResponse(w, "registry not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready", Pairs: len(pairs)}, http.StatusOK)
	}
}

func versionHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info := versions.GetVersionInfo()
		common.WriteJSONResponse(w, VersionResponse{
			Version:   info.Version,
			Commit:    info.Commit,
			BuildDate: info.BuildDate,
			GoVersion: info.GoVersion,
			Platform:  info.Platform,
			Registry:  reg.TypeAndVersion(),
		}, http.StatusOK)
	}
}
