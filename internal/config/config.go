// Package config provides configuration management.
// Configuration is loaded once at startup from environment variables and is
// immutable afterwards; components receive the struct explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/honeybadger-technologies/finopsguard/internal/logging"
)

// Config is the immutable core configuration
type Config struct {
	// Environment is the default deployment environment for requests that omit one
	Environment string `mapstructure:"environment"`

	// Pricing contains pricing resolution settings
	Pricing PricingConfig `mapstructure:"pricing"`

	// Cache contains analysis cache settings
	Cache CacheConfig `mapstructure:"cache"`

	// Database contains analysis store settings
	Database DatabaseConfig `mapstructure:"database"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Metrics contains metrics exposure settings
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Logging contains logging configuration
	Logging logging.Config `mapstructure:"logging"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// LiveEnabled is the global switch for live provider pricing
	LiveEnabled bool `mapstructure:"live_enabled"`

	// AWSEnabled enables the AWS live adapter (effective only when LiveEnabled)
	AWSEnabled bool `mapstructure:"aws_enabled"`

	// GCPEnabled enables the GCP live adapter
	GCPEnabled bool `mapstructure:"gcp_enabled"`

	// FallbackToStatic degrades to the static catalog when live pricing fails
	FallbackToStatic bool `mapstructure:"fallback_to_static"`

	// Timeout is the per-live-call deadline
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries bounds live pricing retries
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBaseDelay is the exponential backoff base
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// ProviderParallelism bounds the per-provider pricing fan-out
	ProviderParallelism int `mapstructure:"provider_parallelism"`

	// GCPBillingAPIKey authenticates against the GCP billing catalog
	GCPBillingAPIKey string `mapstructure:"gcp_billing_api_key"`
}

// CacheConfig contains analysis cache settings
type CacheConfig struct {
	// TTL is the lifetime of a cache entry
	TTL time.Duration `mapstructure:"ttl"`

	// SweepInterval is the period of the background eviction sweep
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DatabaseConfig contains analysis store settings
type DatabaseConfig struct {
	// URL is the Postgres DSN; empty selects the in-memory store
	URL string `mapstructure:"url"`

	// MaxConns / MinConns size the connection pool
	MaxConns int `mapstructure:"max_conns"`
	MinConns int `mapstructure:"min_conns"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the bind address
	Addr string `mapstructure:"addr"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig contains metrics exposure settings
type MetricsConfig struct {
	// Enabled exposes the Prometheus endpoint
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path
	Path string `mapstructure:"path"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pricing.Timeout <= 0 {
		return fmt.Errorf("pricing timeout must be positive, got %s", c.Pricing.Timeout)
	}
	if c.Pricing.MaxRetries < 0 {
		return fmt.Errorf("pricing max retries must not be negative, got %d", c.Pricing.MaxRetries)
	}
	if c.Pricing.ProviderParallelism < 1 {
		return fmt.Errorf("provider parallelism must be at least 1, got %d", c.Pricing.ProviderParallelism)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("pricing.live_enabled", false)
	v.SetDefault("pricing.aws_enabled", true)
	v.SetDefault("pricing.gcp_enabled", false)
	v.SetDefault("pricing.fallback_to_static", true)
	v.SetDefault("pricing.timeout", "5s")
	v.SetDefault("pricing.max_retries", 2)
	v.SetDefault("pricing.retry_base_delay", "100ms")
	v.SetDefault("pricing.provider_parallelism", 8)
	v.SetDefault("pricing.gcp_billing_api_key", "")

	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.sweep_interval", "5m")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.development", false)
}

// bindEnvVars maps config keys to the environment variables the deployment
// surface documents. Names are bound explicitly so the mapping stays visible.
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"environment":                  "DEFAULT_ENVIRONMENT",
		"pricing.live_enabled":         "LIVE_PRICING_ENABLED",
		"pricing.aws_enabled":          "AWS_PRICING_ENABLED",
		"pricing.gcp_enabled":          "GCP_PRICING_ENABLED",
		"pricing.fallback_to_static":   "PRICING_FALLBACK_TO_STATIC",
		"pricing.timeout":              "PRICING_TIMEOUT",
		"pricing.max_retries":          "PRICING_MAX_RETRIES",
		"pricing.retry_base_delay":     "PRICING_RETRY_BASE_DELAY",
		"pricing.provider_parallelism": "PROVIDER_PARALLELISM",
		"pricing.gcp_billing_api_key":  "GCP_BILLING_API_KEY",
		"cache.ttl":                    "CACHE_TTL",
		"cache.sweep_interval":         "CACHE_SWEEP_INTERVAL",
		"database.url":                 "DATABASE_URL",
		"database.max_conns":           "DATABASE_MAX_CONNS",
		"database.min_conns":           "DATABASE_MIN_CONNS",
		"server.addr":                  "SERVER_ADDR",
		"server.read_timeout":          "SERVER_READ_TIMEOUT",
		"server.write_timeout":         "SERVER_WRITE_TIMEOUT",
		"server.shutdown_timeout":      "SERVER_SHUTDOWN_TIMEOUT",
		"metrics.enabled":              "METRICS_ENABLED",
		"metrics.path":                 "METRICS_PATH",
		"logging.level":                "LOG_LEVEL",
		"logging.format":               "LOG_FORMAT",
		"logging.output":               "LOG_OUTPUT",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return nil
}
