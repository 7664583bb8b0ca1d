package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence and use the AGENT_ prefix with underscores for nesting
// (AGENT_SERVER_PORT, AGENT_DATABASE_URL, ...).
// Returns a populated Config or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars carry the required values.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without real defaults still need registering so AutomaticEnv
	// resolves them during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("classifier.gemini_api_key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("classifier.model_name", "gemini-2.0-flash")
	v.SetDefault("classifier.max_input_chars", 20000)
	v.SetDefault("classifier.timeout_seconds", 30)

	v.SetDefault("jobs.poll_interval_ms", 1000)
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.retry_base_ms", 1000)
	v.SetDefault("jobs.retry_cap_ms", 30000)
	v.SetDefault("jobs.shutdown_seconds", 30)
	v.SetDefault("jobs.stale_minutes", 30)
	v.SetDefault("jobs.sync_safe_intents", []string{"create_task", "course_task"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.state_ttl_minutes", 15)
}
