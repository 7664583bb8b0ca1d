package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Classifier ClassifierConfig `mapstructure:"classifier" validate:"required"`
	Jobs       JobsConfig       `mapstructure:"jobs" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database related settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// ClassifierConfig contains language-model classifier settings.
type ClassifierConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
	// MaxInputChars bounds the text sent to the model per call.
	MaxInputChars int `mapstructure:"max_input_chars" validate:"gt=0"`
	// TimeoutSeconds bounds a single classification call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// JobsConfig contains the job queue and processor settings.
type JobsConfig struct {
	PollIntervalMs  int `mapstructure:"poll_interval_ms" validate:"gt=0"`
	MaxConcurrent   int `mapstructure:"max_concurrent" validate:"gt=0"`
	MaxRetries      int `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseMs     int `mapstructure:"retry_base_ms" validate:"gt=0"`
	RetryCapMs      int `mapstructure:"retry_cap_ms" validate:"gt=0"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds" validate:"gt=0"`
	StaleMinutes    int `mapstructure:"stale_minutes" validate:"gt=0"`
	// SyncSafeIntents lists the intents safe to execute inline on the
	// request path instead of through the queue. Policy, not code.
	SyncSafeIntents []string `mapstructure:"sync_safe_intents"`
}

// RedisConfig contains the optional conversation-state cache settings.
type RedisConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Addr            string `mapstructure:"addr"`
	StateTTLMinutes int    `mapstructure:"state_ttl_minutes"`
}

// PollInterval returns the processor poll interval as a duration.
func (c JobsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RetryBase returns the backoff base as a duration.
func (c JobsConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RetryCap returns the backoff cap as a duration.
func (c JobsConfig) RetryCap() time.Duration {
	return time.Duration(c.RetryCapMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful drain budget as a duration.
func (c JobsConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// StaleAge returns how long a claim may sit before being released.
func (c JobsConfig) StaleAge() time.Duration {
	return time.Duration(c.StaleMinutes) * time.Minute
}

// StateTTL returns the cached conversation-state lifetime.
func (c RedisConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}
