// Package config provides configuration loading for recordd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, EMBEDDING_API_KEY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The loaded Config is constructed once at process start and passed
// explicitly into every collaborator that needs it.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recordd/internal/logging"
)

// Config holds the complete recordd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	Logging       logging.Config      `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds document store configuration.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig holds principal resolution configuration.
type AuthConfig struct {
	JWTSecret    string `koanf:"jwt_secret"`
	APIKeyHeader string `koanf:"api_key_header"`
	APIKeyPrefix string `koanf:"api_key_prefix"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	Model      string `koanf:"model"`
	MaxRetries int    `koanf:"max_retries"`
}

// ObservabilityConfig holds telemetry configuration.
type ObservabilityConfig struct {
	ServiceName string `koanf:"service_name"`
}

// applyDefaults fills zero values with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "recordd.db"
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-API-Key"
	}
	if cfg.Auth.APIKeyPrefix == "" {
		cfg.Auth.APIKeyPrefix = "rec_"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "recordd"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("embedding max_retries must be non-negative, got %d", c.Embedding.MaxRetries)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
