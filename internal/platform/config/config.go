// Package config loads application configuration from environment variables.
// All variables use the ADC_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Viewer   ViewerConfig
	Log      LogConfig
	// OpsCatalogPath optionally points at a YAML file overriding the
	// built-in console operation catalog.
	OpsCatalogPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// UpstreamConfig holds scraper backend settings.
type UpstreamConfig struct {
	URL     string
	Timeout time.Duration
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// cache; every cached endpoint then hits the backend directly.
type CacheConfig struct {
	URL string
	TTL time.Duration
}

// AuthConfig holds admin authentication settings. An empty KeyHash leaves
// the API open, for local single-operator use.
type AuthConfig struct {
	// KeyHash is a bcrypt hash of the admin key expected in X-Admin-Key.
	KeyHash string
}

// ViewerConfig holds document viewer settings.
type ViewerConfig struct {
	ConvertWait time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with ADC_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ADC_SERVER_PORT", 8080),
			Host: envStr("ADC_SERVER_HOST", "0.0.0.0"),
		},
		Upstream: UpstreamConfig{
			URL:     envStr("ADC_UPSTREAM_URL", "http://localhost:5000"),
			Timeout: envDuration("ADC_UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			URL: envStr("ADC_CACHE_URL", ""),
			TTL: envDuration("ADC_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			KeyHash: envStr("ADC_AUTH_KEY_HASH", ""),
		},
		Viewer: ViewerConfig{
			ConvertWait: envDuration("ADC_VIEWER_CONVERT_WAIT", 45*time.Second),
		},
		Log: LogConfig{
			Level:  envStr("ADC_LOG_LEVEL", "info"),
			Format: envStr("ADC_LOG_FORMAT", "json"),
		},
		OpsCatalogPath: envStr("ADC_OPS_CATALOG", ""),
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("ADC_UPSTREAM_URL is required")
	}
	if !strings.HasPrefix(c.Upstream.URL, "http://") && !strings.HasPrefix(c.Upstream.URL, "https://") {
		return fmt.Errorf("ADC_UPSTREAM_URL must be an http(s) URL, got %q", c.Upstream.URL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ADC_SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("ADC_UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
