package gloss

import (
	"errors"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hyperengineering/gloss/internal/store"
)

// Config configures the gloss client.
// Environment variables are parsed with the GLOSS_ prefix.
type Config struct {
	// LocalPath is the path to the local SQLite database.
	LocalPath string `envconfig:"DB_PATH"`

	// CloudURL is the base URL of the shared store's row API.
	// If empty (and CloudDSN is empty), operates in offline-only mode.
	CloudURL string `envconfig:"CLOUD_URL"`

	// CloudAPIKey is the project key sent with every row API request.
	CloudAPIKey string `envconfig:"CLOUD_API_KEY"`

	// AccessToken is the signed-in account's bearer token. Optional.
	AccessToken string `envconfig:"ACCESS_TOKEN"`

	// CloudDSN connects straight to the shared store's Postgres database
	// instead of the row API.
	CloudDSN string `envconfig:"CLOUD_DSN"`

	// AccountID is the account the local snapshot is bound to at session start.
	AccountID string `envconfig:"ACCOUNT_ID"`

	// SyncTimeout bounds each background cloud call.
	// Defaults to 30 seconds.
	SyncTimeout time.Duration `envconfig:"SYNC_TIMEOUT" default:"30s"`

	// Debug enables debug-level logging, including every cloud request.
	Debug bool `envconfig:"DEBUG"`

	// DebugLogPath is the path to write logs.
	// Defaults to stderr if empty.
	DebugLogPath string `envconfig:"DEBUG_LOG"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LocalPath:   store.DefaultDBPath(),
		SyncTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv reads configuration from environment variables, after
// loading a .env file from the working directory if one exists.
//
//	GLOSS_DB_PATH        → LocalPath
//	GLOSS_CLOUD_URL      → CloudURL
//	GLOSS_CLOUD_API_KEY  → CloudAPIKey
//	GLOSS_ACCESS_TOKEN   → AccessToken
//	GLOSS_CLOUD_DSN      → CloudDSN
//	GLOSS_ACCOUNT_ID     → AccountID
//	GLOSS_SYNC_TIMEOUT   → SyncTimeout
//	GLOSS_DEBUG          → Debug
//	GLOSS_DEBUG_LOG      → DebugLogPath
func ConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, &ValidationError{Field: ".env", Message: err.Error()}
	}

	var cfg Config
	if err := envconfig.Process("GLOSS", &cfg); err != nil {
		return Config{}, &ValidationError{Field: "env", Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	if c.CloudURL != "" {
		u, err := url.Parse(c.CloudURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "CloudURL", Message: "must be an http(s) URL"}
		}
		if c.CloudAPIKey == "" {
			return &ValidationError{Field: "CloudAPIKey", Message: "required when CloudURL is set"}
		}
	}

	if c.CloudURL != "" && c.CloudDSN != "" {
		return &ValidationError{Field: "CloudDSN", Message: "set either CloudURL or CloudDSN, not both"}
	}

	if c.SyncTimeout < 0 {
		return &ValidationError{Field: "SyncTimeout", Message: "must be non-negative"}
	}

	return nil
}

// IsOffline returns true if no cloud store is configured.
func (c *Config) IsOffline() bool {
	return c.CloudURL == "" && c.CloudDSN == ""
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.LocalPath == "" {
		c.LocalPath = defaults.LocalPath
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = defaults.SyncTimeout
	}

	return c
}
