// Package config provides SDK configuration loading from environment
// variables and optional YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full SDK configuration.
type Config struct {
	// Service identification
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"` // development, staging, production
	Version     string `yaml:"version"`

	// Collector
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Enabled  bool   `yaml:"enabled"`

	// Snapshot capture limits
	MaxCaptureDepth int `yaml:"max_capture_depth"`
	MaxStringLength int `yaml:"max_string_length"`

	// Breakpoint polling (0 disables the background poller; the host
	// application may still call PollBreakpoints itself)
	PollInterval time.Duration `yaml:"poll_interval"`

	// HTTP
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Metrics buffering
	MetricsBufferSize    int           `yaml:"metrics_buffer_size"`
	MetricsFlushInterval time.Duration `yaml:"metrics_flush_interval"`

	// Shared breakpoint cache (optional; empty uses the in-process cache)
	RedisURL string `yaml:"redis_url"`

	// Observability of the SDK itself
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, text

	// Tracing
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingSampling float64 `yaml:"tracing_sampling"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("GLIMPSE_SERVICE_NAME", serviceName),
		Environment: getEnv("GLIMPSE_ENV", "development"),
		Version:     getEnv("GLIMPSE_VERSION", "dev"),

		APIKey:   getEnv("GLIMPSE_API_KEY", ""),
		Endpoint: getEnv("GLIMPSE_ENDPOINT", "http://localhost:8080"),
		Enabled:  getEnvBool("GLIMPSE_ENABLED", true),

		MaxCaptureDepth: getEnvInt("GLIMPSE_MAX_DEPTH", 10),
		MaxStringLength: getEnvInt("GLIMPSE_MAX_STRING_LENGTH", 1000),

		PollInterval: getEnvDuration("GLIMPSE_POLL_INTERVAL", 0),
		HTTPTimeout:  getEnvDuration("GLIMPSE_HTTP_TIMEOUT", 5*time.Second),

		MetricsBufferSize:    getEnvInt("GLIMPSE_METRICS_BUFFER_SIZE", 100),
		MetricsFlushInterval: getEnvDuration("GLIMPSE_METRICS_FLUSH_INTERVAL", 10*time.Second),

		RedisURL: getEnv("GLIMPSE_REDIS_URL", ""),

		LogLevel:  getEnv("GLIMPSE_LOG_LEVEL", "info"),
		LogFormat: getEnv("GLIMPSE_LOG_FORMAT", "json"),

		TracingEnabled:  getEnvBool("GLIMPSE_TRACING_ENABLED", false),
		TracingSampling: getEnvFloat("GLIMPSE_TRACING_SAMPLING", 1.0),
		OTLPEndpoint:    getEnv("GLIMPSE_OTLP_ENDPOINT", "localhost:4317"),
	}

	return cfg, nil
}

// LoadFile loads configuration from a YAML file on top of the environment.
// Values present in the file override environment values.
func LoadFile(serviceName, path string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Disabled reports whether the SDK should run in no-op mode. A missing API
// key is not an error; it is a first-class disabled mode.
func (c *Config) Disabled() bool {
	return !c.Enabled || c.APIKey == ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
