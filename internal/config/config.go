// Package config provides configuration loading and management for the feed registry.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/feed-registry-server/internal/telemetry"
)

const (
	// StorageTypeMemory keeps phase history in process memory
	StorageTypeMemory = "memory"

	// StorageTypeDatabase keeps phase history in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	// AuthModeHeader trusts the X-Caller request header
	AuthModeHeader = "header"

	// AuthModeJWT takes the caller from a verified bearer token
	AuthModeJWT = "jwt"

	// DefaultCallerClaim is the JWT claim holding the caller identity
	DefaultCallerClaim = "sub"
)

const (
	// AccessPolicyNone leaves reads ungated
	AccessPolicyNone = "none"

	// AccessPolicyGrants gates reads with global and per-pair grants
	AccessPolicyGrants = "grants"

	// AccessPolicyCedar gates reads with a Cedar policy file
	AccessPolicyCedar = "cedar"
)

// EnvPrefix is the prefix of environment variables read through viper
const EnvPrefix = "FEED_REGISTRY"

const (
	// DefaultSourceTimeout bounds each request to an upstream source
	DefaultSourceTimeout = 10 * time.Second

	// DefaultEventStream is the Redis stream events are appended to
	DefaultEventStream = "feed-registry:events"

	// DatabasePasswordEnv is consulted when no password file is configured
	DatabasePasswordEnv = "FEED_REGISTRY_DATABASE_PASSWORD"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// EvalSymlinks also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Owner is the identity allowed to administer the registry
	Owner string `yaml:"owner"`

	// Storage selects where phase history is kept (memory or database).
	// Defaults to memory.
	Storage  string          `yaml:"storage,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`

	Sources   []SourceConfig    `yaml:"sources"`
	Access    *AccessConfig     `yaml:"access,omitempty"`
	Events    *EventsConfig     `yaml:"events,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
	Auth      *AuthConfig       `yaml:"auth,omitempty"`

	// Facades serve single pairs under fixed names at /v1/facades/{name}
	Facades []FacadeConfig `yaml:"facades,omitempty"`
}

// FacadeConfig exposes one pair through the single-pair read API.
type FacadeConfig struct {
	Name  string `yaml:"name"`
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`

	// Identity is the caller the facade reads the registry as. The
	// registry's access policy must admit it.
	Identity string `yaml:"identity"`

	// AllowedReader is always served by the facade
	AllowedReader string `yaml:"allowedReader,omitempty"`

	// Policy names an access policy (grants or cedar) admitting other readers
	Policy string `yaml:"policy,omitempty"`
}

// SourceConfig maps a source address to the aggregator endpoint serving it
type SourceConfig struct {
	// Address is the reference used in propose and confirm requests
	Address string `yaml:"address"`

	// Endpoint is the base URL of the aggregator's HTTP API
	Endpoint string `yaml:"endpoint"`

	// Timeout is a duration string such as "5s". Defaults to 10s.
	Timeout string `yaml:"timeout,omitempty"`
}

// GetTimeout returns the parsed timeout, DefaultSourceTimeout when unset.
func (s *SourceConfig) GetTimeout() time.Duration {
	if s.Timeout == "" {
		return DefaultSourceTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return DefaultSourceTimeout
	}
	return d
}

// AccessConfig selects and seeds the read access policy
type AccessConfig struct {
	// Policy is one of none, grants or cedar
	Policy string `yaml:"policy"`

	// CheckDisabled starts a grants policy with checking turned off
	CheckDisabled bool `yaml:"checkDisabled,omitempty"`

	// GlobalGrants are callers allowed to read every pair
	GlobalGrants []string `yaml:"globalGrants,omitempty"`

	// LocalGrants are callers allowed to read a single pair
	LocalGrants []LocalGrant `yaml:"localGrants,omitempty"`

	// CedarPolicyFile holds Cedar policies over Caller, read and Pair
	CedarPolicyFile string `yaml:"cedarPolicyFile,omitempty"`

	// WatchPolicyFile reloads CedarPolicyFile when it changes on disk
	WatchPolicyFile bool `yaml:"watchPolicyFile,omitempty"`
}

// LocalGrant allows Caller to read Base/Quote
type LocalGrant struct {
	Caller string `yaml:"caller"`
	Base   string `yaml:"base"`
	Quote  string `yaml:"quote"`
}

// GetPolicy returns the configured policy kind, none when unset.
func (a *AccessConfig) GetPolicy() string {
	if a == nil || a.Policy == "" {
		return AccessPolicyNone
	}
	return a.Policy
}

// EventsConfig configures where registry events are published besides the in-memory log
type EventsConfig struct {
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the Redis stream sink
type RedisConfig struct {
	// Address is "host:port"
	Address string `yaml:"address"`

	// PasswordFile optionally holds the Redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	DB int `yaml:"db,omitempty"`

	// Stream defaults to DefaultEventStream
	Stream string `yaml:"stream,omitempty"`

	// MaxLen approximately caps the stream. 0 means unbounded.
	MaxLen int64 `yaml:"maxLen,omitempty"`
}

// GetStream returns the stream name, using the default if not specified
func (r *RedisConfig) GetStream() string {
	if r.Stream == "" {
		return DefaultEventStream
	}
	return r.Stream
}

// GetPassword reads the password file, or returns "" when none is configured.
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(r.PasswordFile))
	if err != nil {
		return "", fmt.Errorf("failed to read redis password from file %s: %w", r.PasswordFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the FEED_REGISTRY_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// GetConnMaxLifetime returns the parsed ConnMaxLifetime, or 0 when unset or invalid.
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	if d.ConnMaxLifetime == "" {
		return 0
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}
	return lifetime
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageType returns the storage type, using memory if not specified
func (c *Config) GetStorageType() string {
	if c.Storage == "" {
		return StorageTypeMemory
	}
	return c.Storage
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	addresses := make(map[string]bool)
	for i, src := range c.Sources {
		if err := validateSource(&src, i); err != nil {
			return err
		}
		if addresses[src.Address] {
			return fmt.Errorf("sources[%d]: duplicate source address '%s'", i, src.Address)
		}
		addresses[src.Address] = true
	}

	if err := c.Access.validate(); err != nil {
		return fmt.Errorf("access: %w", err)
	}

	if c.Events != nil && c.Events.Redis != nil && c.Events.Redis.Address == "" {
		return fmt.Errorf("events.redis.address is required")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if err := c.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	names := make(map[string]bool)
	for i, f := range c.Facades {
		if err := f.validate(c.Access); err != nil {
			return fmt.Errorf("facades[%d]: %w", i, err)
		}
		if names[f.Name] {
			return fmt.Errorf("facades[%d]: duplicate facade name '%s'", i, f.Name)
		}
		names[f.Name] = true
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.GetStorageType() {
	case StorageTypeMemory:
		return nil
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required when storage is %s", StorageTypeDatabase)
		}
		var errs []error
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
		if c.Database.Database == "" {
			errs = append(errs, fmt.Errorf("database.database is required"))
		}
		if c.Database.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(c.Database.ConnMaxLifetime); err != nil {
				errs = append(errs, fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err))
			}
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("storage must be one of %s or %s, got %s", StorageTypeMemory, StorageTypeDatabase, c.Storage)
	}
}

func (f *FacadeConfig) validate(access *AccessConfig) error {
	var errs []error
	if f.Name == "" || strings.ContainsAny(f.Name, "/?#") {
		errs = append(errs, fmt.Errorf("name must be non-empty and contain no '/', '?' or '#'"))
	}
	if f.Base == "" || f.Quote == "" {
		errs = append(errs, fmt.Errorf("base and quote are required"))
	}
	if f.Identity == "" {
		errs = append(errs, fmt.Errorf("identity is required"))
	}
	switch f.Policy {
	case "", AccessPolicyGrants:
	case AccessPolicyCedar:
		if access == nil || access.CedarPolicyFile == "" {
			errs = append(errs, fmt.Errorf("policy cedar requires access.cedarPolicyFile"))
		}
	default:
		errs = append(errs, fmt.Errorf("policy must be %s or %s, got %s", AccessPolicyGrants, AccessPolicyCedar, f.Policy))
	}
	if f.Policy == "" && f.AllowedReader == "" {
		errs = append(errs, fmt.Errorf("allowedReader or policy is required"))
	}
	return errors.Join(errs...)
}

func validateSource(src *SourceConfig, index int) error {
	if src.Address == "" {
		return fmt.Errorf("sources[%d]: address is required", index)
	}
	prefix := fmt.Sprintf("sources[%d] (%s)", index, src.Address)

	if src.Endpoint == "" {
		return fmt.Errorf("%s: endpoint is required", prefix)
	}
	u, err := url.Parse(src.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: endpoint must be an http or https URL", prefix)
	}

	if src.Timeout != "" {
		d, err := time.ParseDuration(src.Timeout)
		if err != nil {
			return fmt.Errorf("%s: timeout must be a valid duration (e.g., '5s'): %w", prefix, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: timeout must be positive", prefix)
		}
	}
	return nil
}

func (a *AccessConfig) validate() error {
	if a == nil {
		return nil
	}

	policy := a.GetPolicy()
	switch policy {
	case AccessPolicyNone, AccessPolicyGrants, AccessPolicyCedar:
	default:
		return fmt.Errorf("policy must be one of %s, %s or %s, got %s",
			AccessPolicyNone, AccessPolicyGrants, AccessPolicyCedar, a.Policy)
	}

	if policy != AccessPolicyGrants && (len(a.GlobalGrants) > 0 || len(a.LocalGrants) > 0 || a.CheckDisabled) {
		return fmt.Errorf("grants are only valid with the %s policy", AccessPolicyGrants)
	}
	if policy == AccessPolicyCedar && a.CedarPolicyFile == "" {
		return fmt.Errorf("cedarPolicyFile is required with the %s policy", AccessPolicyCedar)
	}
	if policy != AccessPolicyCedar && a.CedarPolicyFile != "" {
		return fmt.Errorf("cedarPolicyFile is only valid with the %s policy", AccessPolicyCedar)
	}
	if a.WatchPolicyFile && a.CedarPolicyFile == "" {
		return fmt.Errorf("watchPolicyFile requires cedarPolicyFile")
	}

	for i, g := range a.GlobalGrants {
		if g == "" {
			return fmt.Errorf("globalGrants[%d]: caller is required", i)
		}
	}
	for i, g := range a.LocalGrants {
		if g.Caller == "" || g.Base == "" || g.Quote == "" {
			return fmt.Errorf("localGrants[%d]: caller, base and quote are required", i)
		}
	}
	return nil
}

// AuthConfig selects how callers are identified
type AuthConfig struct {
	// Mode is header (default) or jwt
	Mode string `yaml:"mode,omitempty"`

	// ResourceURL is advertised in protected resource metadata and
	// WWW-Authenticate challenges
	ResourceURL string `yaml:"resourceUrl,omitempty"`

	// Realm is the protection space of WWW-Authenticate challenges
	Realm string `yaml:"realm,omitempty"`

	// PublicPaths bypass authentication. The health, readiness, version,
	// metrics and well-known endpoints are always public.
	PublicPaths []string `yaml:"publicPaths,omitempty"`

	// Providers verify bearer tokens in jwt mode, tried in order
	Providers []JWTProviderConfig `yaml:"providers,omitempty"`
}

// JWTProviderConfig verifies tokens from one issuer
type JWTProviderConfig struct {
	Name     string `yaml:"name"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience,omitempty"`

	// KeyFile holds a PEM public key (RSA, ECDSA or Ed25519) or an HMAC secret
	KeyFile string `yaml:"keyFile,omitempty"`

	// JWKSURL serves the issuer's JSON Web Key Set. Exclusive with KeyFile.
	JWKSURL string `yaml:"jwksUrl,omitempty"`

	// CallerClaim names the claim carrying the caller identity. Defaults to sub.
	CallerClaim string `yaml:"callerClaim,omitempty"`
}

// GetMode returns the auth mode, AuthModeHeader when unset. Nil-safe.
func (a *AuthConfig) GetMode() string {
	if a == nil || a.Mode == "" {
		return AuthModeHeader
	}
	return a.Mode
}

// GetCallerClaim returns the caller claim, DefaultCallerClaim when unset.
func (p *JWTProviderConfig) GetCallerClaim() string {
	if p.CallerClaim == "" {
		return DefaultCallerClaim
	}
	return p.CallerClaim
}

func (a *AuthConfig) validate() error {
	switch a.GetMode() {
	case AuthModeHeader:
		if a != nil && len(a.Providers) > 0 {
			return fmt.Errorf("providers are only valid in %s mode", AuthModeJWT)
		}
		return nil
	case AuthModeJWT:
	default:
		return fmt.Errorf("mode must be %s or %s, got %s", AuthModeHeader, AuthModeJWT, a.Mode)
	}

	if len(a.Providers) == 0 {
		return fmt.Errorf("at least one provider is required in %s mode", AuthModeJWT)
	}

	var errs []error
	names := make(map[string]bool)
	for i, p := range a.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
		} else if names[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate provider name '%s'", i, p.Name))
		}
		names[p.Name] = true
		if p.Issuer == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: issuer is required", i))
		}
		switch {
		case p.KeyFile == "" && p.JWKSURL == "":
			errs = append(errs, fmt.Errorf("providers[%d]: keyFile or jwksUrl is required", i))
		case p.KeyFile != "" && p.JWKSURL != "":
			errs = append(errs, fmt.Errorf("providers[%d]: keyFile and jwksUrl are mutually exclusive", i))
		}
	}
	return errors.Join(errs...)
}
