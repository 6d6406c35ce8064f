// Package config provides configuration loading for the console backend.
// Configuration sources (in priority order): env vars > config file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all console backend configuration.
type Config struct {
	// Listen address (default ":8080")
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	// Data directory for SQLite databases (default "/var/lib/console")
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Deployment environment: "production" or "development". Gates the
	// Secure cookie attribute and the fixture listing endpoint.
	Environment string `json:"environment" yaml:"environment"`

	// TLS settings
	TLSCert string `json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey  string `json:"tls_key,omitempty" yaml:"tls_key,omitempty"`

	// Signing key for session tokens (hex-encoded, 64+ chars).
	// Required in production; auto-generated in development.
	SigningKey string `json:"signing_key,omitempty" yaml:"signing_key,omitempty"`

	// Admin store DSN. postgres:// or mysql:// for external databases;
	// empty means a SQLite file under DataDir.
	AdminStoreDSN string `json:"admin_store_dsn,omitempty" yaml:"admin_store_dsn,omitempty"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Audit retention
	Audit AuditConfig `json:"audit,omitempty" yaml:"audit,omitempty"`

	// Tracing (optional)
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// RateLimitConfig configures per-client signin rate limiting.
type RateLimitConfig struct {
	SigninPerMinute int `json:"signin_per_minute" yaml:"signin_per_minute"`
}

// AuditConfig configures audit event retention.
type AuditConfig struct {
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
	PurgeSchedule string `json:"purge_schedule" yaml:"purge_schedule"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		DataDir:     "/var/lib/console",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		RateLimit: RateLimitConfig{
			SigninPerMinute: 10,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			PurgeSchedule: "0 3 * * *",
		},
	}
}

// Load reads configuration from a file, then overlays environment variables.
// The file format is chosen by extension: .yaml/.yml, otherwise JSON.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("CONSOLE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CONSOLE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONSOLE_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("CONSOLE_TLS_CERT"); v != "" {
		cfg.TLSCert = v
	}
	if v := os.Getenv("CONSOLE_TLS_KEY"); v != "" {
		cfg.TLSKey = v
	}
	if v := os.Getenv("CONSOLE_SIGNING_KEY"); v != "" {
		cfg.SigningKey = v
	}
	if v := os.Getenv("CONSOLE_ADMIN_STORE_DSN"); v != "" {
		cfg.AdminStoreDSN = v
	}
	if v := os.Getenv("CONSOLE_SIGNIN_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.SigninPerMinute = n
		}
	}
	if v := os.Getenv("CONSOLE_AUDIT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.RetentionDays = n
		}
	}
	if v := os.Getenv("CONSOLE_AUDIT_PURGE_SCHEDULE"); v != "" {
		cfg.Audit.PurgeSchedule = v
	}
	if v := os.Getenv("CONSOLE_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("CONSOLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() Config {
	cfg, _ := Load("")
	return cfg
}

// Save writes configuration to a file (JSON).
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// IsProduction returns true for production deployments.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// HasTLS returns true if TLS is configured.
func (c Config) HasTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
