// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve on minimal images

	"github.com/caarlos0/env/v10"

	"github.com/keydesk/keydesk/internal/auth"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Advisory providers.
const (
	AdvisoryRules  = "rules"
	AdvisoryOpenAI = "openai"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsMemory     = "memory"
)

const minWebhookSecretLength = 16

// ErrInvalidConfig is returned by Validate for inconsistent settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	AppPort     int    `env:"APP_PORT" envDefault:"8080"`
	AppTimezone string `env:"APP_TIMEZONE" envDefault:"UTC"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`

	// Cache (Redis). Optional; idempotency falls back to memory without it.
	RedisURL string `env:"REDIS_URL"`

	// Space/application catalog file. Empty uses the built-in seed.
	CatalogFile  string `env:"CATALOG_FILE"`
	CatalogWatch bool   `env:"CATALOG_WATCH" envDefault:"true"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Acting principal when requests carry no principal headers
	DefaultPrincipalID   string `env:"DEFAULT_PRINCIPAL_ID" envDefault:"u-admin"`
	DefaultPrincipalName string `env:"DEFAULT_PRINCIPAL_NAME" envDefault:"system administrator"`

	// Seed tag for generated key prefixes (e.g., dp_)
	KeyPrefixTag string `env:"KEY_PREFIX_TAG" envDefault:"dp_"`

	Advisory AdvisoryConfig `envPrefix:"ADVISORY_"`

	// Key lifecycle notifications; disabled when WEBHOOK_URL is empty
	Webhook WebhookConfig `envPrefix:"WEBHOOK_"`

	// Rate limiting for key verification
	RateLimitVerifyEnabled bool `env:"RATE_LIMIT_VERIFY_ENABLED" envDefault:"true"`
	RateLimitVerifyRPS     int  `env:"RATE_LIMIT_VERIFY_RPS" envDefault:"20"`
	RateLimitVerifyBurst   int  `env:"RATE_LIMIT_VERIFY_BURST" envDefault:"40"`

	// Metrics exposition on /metrics
	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"prometheus"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// AdvisoryConfig selects and configures the security advisory provider.
type AdvisoryConfig struct {
	Provider string        `env:"PROVIDER" envDefault:"rules"`
	BaseURL  string        `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	APIKey   string        `env:"API_KEY"`
	Model    string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"8s"`
}

// WebhookConfig configures signed delivery of key lifecycle events.
type WebhookConfig struct {
	URL           string        `env:"URL"`
	Secret        string        `env:"SECRET"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	AllowInsecure bool          `env:"ALLOW_INSECURE" envDefault:"false"`
}

// Enabled reports whether lifecycle notifications are configured.
func (w WebhookConfig) Enabled() bool {
	return w.URL != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves AppTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.AppTimezone, err)
	}
	return loc, nil
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate enforces rules that span several variables.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be memory or postgres, got %q", c.StorageDriver))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}

	if err := auth.ValidateSeed(c.KeyPrefixTag); err != nil {
		errs = append(errs, fmt.Errorf("KEY_PREFIX_TAG: %w", err))
	}

	if c.DefaultPrincipalID == "" {
		errs = append(errs, errors.New("DEFAULT_PRINCIPAL_ID must not be empty"))
	}

	switch c.Advisory.Provider {
	case AdvisoryRules:
	case AdvisoryOpenAI:
		if c.Advisory.BaseURL == "" || c.Advisory.Model == "" {
			errs = append(errs, errors.New("ADVISORY_BASE_URL and ADVISORY_MODEL are required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("ADVISORY_PROVIDER must be rules or openai, got %q", c.Advisory.Provider))
	}
	if c.Advisory.Timeout <= 0 {
		errs = append(errs, errors.New("ADVISORY_TIMEOUT must be positive"))
	}

	if c.RateLimitVerifyEnabled && (c.RateLimitVerifyRPS <= 0 || c.RateLimitVerifyBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_VERIFY_RPS and RATE_LIMIT_VERIFY_BURST must be positive"))
	}

	switch c.MetricsBackend {
	case MetricsPrometheus, MetricsMemory:
	default:
		errs = append(errs, fmt.Errorf("METRICS_BACKEND must be prometheus or memory, got %q", c.MetricsBackend))
	}

	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}

	if c.Webhook.Enabled() {
		if c.RedisURL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL requires REDIS_URL for the event stream"))
		}
		if len(c.Webhook.Secret) < minWebhookSecretLength {
			errs = append(errs, fmt.Errorf("WEBHOOK_SECRET must be at least %d characters", minWebhookSecretLength))
		}
		if c.Webhook.MaxAttempts < 1 || c.Webhook.Timeout <= 0 {
			errs = append(errs, errors.New("WEBHOOK_MAX_ATTEMPTS and WEBHOOK_TIMEOUT must be positive"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Load parses environment variables, validates them and returns a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
