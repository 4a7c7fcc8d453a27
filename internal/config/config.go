package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/plotbeam/renderauth/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the renderauth.yaml structure
type Definition struct {
	// Mode selects the verification backend: "store" consults the relational
	// backing store through the in-process cache, "remote" delegates to the
	// external authorization service. Exactly one is active per deployment.
	Mode string `yaml:"mode"`

	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Secrets SecretsConfig `yaml:"secrets"`
	Authz   AuthzConfig   `yaml:"authz"`
	Health  HealthConfig  `yaml:"health"`
}

// CacheConfig controls the in-process verification cache
type CacheConfig struct {
	// TTLSeconds is the maximum age of a cached decision before the next
	// access revalidates it against the store.
	TTLSeconds int `yaml:"ttl_seconds"`

	// MaxEntries bounds the cache. When the bound is hit, expired entries
	// are swept first, then the oldest entry is evicted.
	MaxEntries int `yaml:"max_entries"`
}

// TTL returns the cache entry time-to-live as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StoreConfig controls the pooled backing-store connector
type StoreConfig struct {
	MaxOpenConns       int `yaml:"max_open_conns"`
	MaxIdleConns       int `yaml:"max_idle_conns"`
	ConnMaxIdleSeconds int `yaml:"conn_max_idle_seconds"`
	ConnectTimeoutMs   int `yaml:"connect_timeout_ms"`
	QueryTimeoutMs     int `yaml:"query_timeout_ms"`
}

// ConnectTimeout returns the pool initialization timeout
func (c StoreConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// QueryTimeout returns the per-query timeout
func (c StoreConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// ConnMaxIdleTime returns how long an idle connection may linger in the pool
func (c StoreConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleSeconds) * time.Second
}

// SecretsConfig controls where the store connection parameters come from
type SecretsConfig struct {
	// Source is "aws.secretsmanager" or "env"
	Source string `yaml:"source"`

	// SecretID names the secret holding the connection parameters JSON
	// (aws.secretsmanager source only)
	SecretID string `yaml:"secret_id"`

	// Region overrides the AWS region (optional)
	Region string `yaml:"region"`

	// Endpoint is a custom Secrets Manager endpoint for LocalStack/testing
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID / SecretAccessKey are optional static credentials for
	// LocalStack/testing; production uses the default AWS credential chain
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// AuthzConfig controls the external authorization client (remote mode)
type AuthzConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Product   string `yaml:"product"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the per-call timeout for the authorization service
func (c AuthzConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HealthConfig controls the health/metrics HTTP listener
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// Default returns the built-in configuration
func Default() *Definition {
	return &Definition{
		Mode: "store",
		Cache: CacheConfig{
			TTLSeconds: 300,
			MaxEntries: 4096,
		},
		Store: StoreConfig{
			MaxOpenConns:       5,
			MaxIdleConns:       2,
			ConnMaxIdleSeconds: 300,
			ConnectTimeoutMs:   5000,
			QueryTimeoutMs:     3000,
		},
		Secrets: SecretsConfig{
			Source: "aws.secretsmanager",
		},
		Authz: AuthzConfig{
			Product:   "render-api",
			TimeoutMs: 5000,
		},
		Health: HealthConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load reads the renderauth.yaml file, applies RENDERAUTH_* environment
// overrides and validates the result. A missing config file is not an
// error: serverless deployments configure everything through the
// environment.
func (c *Config) Load() error {
	def := Default()

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, def); err != nil {
			return ConfigError{
				Field:      "file",
				Value:      c.Path,
				Message:    fmt.Sprintf("invalid YAML: %v", err),
				Suggestion: "Check for indentation errors and missing quotes",
			}
		}
	case os.IsNotExist(err):
		// Environment-only configuration
	default:
		return fmt.Errorf("failed to read config file %s: %w", c.Path, err)
	}

	applyEnv(def)

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = def
	return nil
}

// applyEnv overlays RENDERAUTH_* environment variables onto the definition
func applyEnv(def *Definition) {
	if v := os.Getenv("RENDERAUTH_MODE"); v != "" {
		def.Mode = v
	}
	if v, ok := envInt("RENDERAUTH_CACHE_TTL_SECONDS"); ok {
		def.Cache.TTLSeconds = v
	}
	if v, ok := envInt("RENDERAUTH_CACHE_MAX_ENTRIES"); ok {
		def.Cache.MaxEntries = v
	}
	if v, ok := envInt("RENDERAUTH_STORE_MAX_OPEN_CONNS"); ok {
		def.Store.MaxOpenConns = v
	}
	if v := os.Getenv("RENDERAUTH_SECRETS_SOURCE"); v != "" {
		def.Secrets.Source = v
	}
	if v := os.Getenv("RENDERAUTH_SECRET_ID"); v != "" {
		def.Secrets.SecretID = v
	}
	if v := os.Getenv("RENDERAUTH_SECRETS_ENDPOINT"); v != "" {
		def.Secrets.Endpoint = v
	}
	if v := os.Getenv("RENDERAUTH_AUTHZ_ENDPOINT"); v != "" {
		def.Authz.Endpoint = v
	}
	if v := os.Getenv("RENDERAUTH_AUTHZ_PRODUCT"); v != "" {
		def.Authz.Product = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the definition for values the verifier cannot run with
func (d *Definition) Validate() error {
	switch d.Mode {
	case "store", "remote":
	default:
		return ConfigError{
			Field:      "mode",
			Value:      d.Mode,
			Message:    "unknown verification mode",
			Suggestion: "Use 'store' for the database-backed verifier or 'remote' for the external authorization service",
		}
	}

	if d.Cache.TTLSeconds <= 0 {
		return ConfigError{
			Field:   "cache.ttl_seconds",
			Value:   d.Cache.TTLSeconds,
			Message: "cache TTL must be positive",
		}
	}
	if d.Cache.MaxEntries <= 0 {
		return ConfigError{
			Field:   "cache.max_entries",
			Value:   d.Cache.MaxEntries,
			Message: "cache bound must be positive",
		}
	}
	if d.Store.MaxOpenConns < 1 {
		return ConfigError{
			Field:      "store.max_open_conns",
			Value:      d.Store.MaxOpenConns,
			Message:    "pool must allow at least one connection",
			Suggestion: "Set store.max_open_conns to 1 or higher",
		}
	}
	if d.Store.MaxIdleConns > d.Store.MaxOpenConns {
		return ConfigError{
			Field:   "store.max_idle_conns",
			Value:   d.Store.MaxIdleConns,
			Message: "idle connections cannot exceed open connections",
		}
	}

	if d.Mode == "remote" && d.Authz.Endpoint == "" {
		return ConfigError{
			Field:      "authz.endpoint",
			Message:    "remote mode requires an authorization service endpoint",
			Suggestion: "Set authz.endpoint or the RENDERAUTH_AUTHZ_ENDPOINT environment variable",
		}
	}

	if d.Mode == "store" {
		switch d.Secrets.Source {
		case "aws.secretsmanager":
			if d.Secrets.SecretID == "" {
				return ConfigError{
					Field:      "secrets.secret_id",
					Message:    "aws.secretsmanager source requires a secret identifier",
					Suggestion: "Set secrets.secret_id or the RENDERAUTH_SECRET_ID environment variable",
				}
			}
		case "env":
		default:
			return ConfigError{
				Field:      "secrets.source",
				Value:      d.Secrets.Source,
				Message:    "unknown secret source",
				Suggestion: "Use 'aws.secretsmanager' or 'env'",
			}
		}
	}

	return nil
}
