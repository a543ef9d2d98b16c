// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CDN      CDNConfig
	Upload   UploadConfig
	Relink   RelinkConfig
	Bulk     BulkConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// CDNConfig holds the image service integration settings.
//
// AccountID and APIToken may be left unset: resolve and validate keep
// working against external entries, while upload, relink, origin delete,
// and purge reject with missing_env instead of attempting the call.
type CDNConfig struct {
	// AccountID is the image service account identifier.
	AccountID string `env:"CDN_ACCOUNT_ID"`

	// APIToken authenticates upload, delete, and purge calls.
	APIToken string `env:"CDN_API_TOKEN"`

	// BaseURL is the service API endpoint.
	BaseURL string `env:"CDN_BASE_URL" default:"https://api.cloudflare.com/client/v4"`

	// DeliveryBaseURL is the public delivery prefix used to build and
	// recognize delivery URLs, e.g. https://imagedelivery.net/AbCdEf123.
	DeliveryBaseURL string `env:"CDN_DELIVERY_BASE_URL"`

	// PurgeZoneID is the zone used for edge-cache purge requests.
	PurgeZoneID string `env:"CDN_PURGE_ZONE_ID"`

	// Timeout bounds each image service call (default: 30s)
	Timeout time.Duration `env:"CDN_TIMEOUT" default:"30s"`

	// DefaultVariant is the rendition used when none is requested (default: public)
	DefaultVariant string `env:"CDN_DEFAULT_VARIANT" default:"public"`
}

// Configured reports whether authenticated CDN operations can be attempted.
func (c *CDNConfig) Configured() bool {
	return c.AccountID != "" && c.APIToken != ""
}

// UploadConfig holds image upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel CDN transfers (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a transfer slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// RelinkConfig holds settings for migrating external images to the CDN.
type RelinkConfig struct {
	// MaxDownloadSize caps the external download in bytes (default: 20MB)
	MaxDownloadSize int64 `env:"RELINK_MAX_DOWNLOAD_SIZE" default:"20971520"`
}

// BulkConfig holds bulk attachment settings.
type BulkConfig struct {
	// Workers bounds per-row concurrency (default: 4)
	Workers int `env:"BULK_WORKERS" default:"4"`

	// MaxRows caps the rows accepted in one batch (default: 1000)
	MaxRows int `env:"BULK_MAX_ROWS" default:"1000"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// A half-configured integration is a deployment mistake; require both
	// halves or neither.
	if (c.CDN.AccountID == "") != (c.CDN.APIToken == "") {
		errs = append(errs, "CDN_ACCOUNT_ID and CDN_API_TOKEN must be set together")
	}
	if c.CDN.Configured() && c.CDN.DeliveryBaseURL == "" {
		errs = append(errs, "CDN_DELIVERY_BASE_URL is required when the CDN integration is configured")
	}
	if c.CDN.DeliveryBaseURL != "" && !strings.HasPrefix(c.CDN.DeliveryBaseURL, "http") {
		errs = append(errs, fmt.Sprintf("CDN_DELIVERY_BASE_URL (%q) must be an absolute URL", c.CDN.DeliveryBaseURL))
	}
	if c.CDN.Timeout <= 0 {
		errs = append(errs, "CDN_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}

	if c.Relink.MaxDownloadSize <= 0 {
		errs = append(errs, "RELINK_MAX_DOWNLOAD_SIZE must be positive")
	}

	if c.Bulk.Workers <= 0 {
		errs = append(errs, "BULK_WORKERS must be positive")
	}
	if c.Bulk.MaxRows <= 0 {
		errs = append(errs, "BULK_MAX_ROWS must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API tokens are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("CDN: {AccountID: %q, APIToken: [MASKED], DeliveryBaseURL: %q, Configured: %v}, ",
		c.CDN.AccountID, c.CDN.DeliveryBaseURL, c.CDN.Configured()))
	b.WriteString(fmt.Sprintf("Upload: {MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Bulk: {Workers: %d, MaxRows: %d}, ", c.Bulk.Workers, c.Bulk.MaxRows))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
