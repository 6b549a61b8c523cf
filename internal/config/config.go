// Package config handles YAML configuration loading with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level proxy configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Provider  ProviderConfig  `yaml:"provider"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxTextLength   int           `yaml:"max_text_length"`
	TrustProxy      bool          `yaml:"trust_proxy"` // honor X-Forwarded-For for client identity
}

// RedisConfig holds the shared cache/rate-limit backend settings.
// An empty URL disables Redis; the proxy falls back to in-process
// cache and rate limiting.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	OpTimeout   time.Duration `yaml:"op_timeout"` // per-operation bound so an outage cannot stall requests
}

// CacheConfig holds audio cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries only applies to the in-memory fallback backend.
	MaxEntries int `yaml:"max_entries"`
}

// RateLimitConfig holds the fixed-window limiter settings.
type RateLimitConfig struct {
	PerMinute int64         `yaml:"per_minute"` // 0 = unlimited
	Window    time.Duration `yaml:"window"`
}

// ProviderConfig holds TTS provider settings.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"` // empty = Google Cloud TTS endpoint
	APIKey  string        `yaml:"api_key"`  // empty = GCP Application Default Credentials
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the usage-log SQLite settings.
type DatabaseConfig struct {
	DSN       string        `yaml:"dsn"`       // file path or ":memory:"; empty disables usage recording
	Retention time.Duration `yaml:"retention"` // how long usage records are kept
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"` // empty means *
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when a setting is absent from the
// file. The 24h cache TTL and 60/min limit match the provider's pricing
// model: cached audio is free, synthesis is not.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxTextLength:   5000,
		},
		Redis: RedisConfig{
			URL:         "redis://localhost:6379",
			DialTimeout: 5 * time.Second,
			OpTimeout:   2 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			MaxEntries: 10_000,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			Window:    time.Minute,
		},
		Provider: ProviderConfig{
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		CORS: CORSConfig{
			Enabled: true,
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
// Missing settings keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
