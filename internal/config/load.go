package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables read by Load,
// e.g. FINSIGHT_SERVER_PORT maps to server.port.
const envPrefix = "FINSIGHT"

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, and the secrets
	// have no defaults, so bind them explicitly.
	for _, key := range []string{"database.url", "llm.gemini_api_key", "queue.nats_url", "llm.prompt_template_path"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars alone can carry the config.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers conservative defaults for every knob that has one.
// Secrets (database URL, API key) deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("queue.driver", QueueDriverMemory)
	v.SetDefault("queue.buffer_size", 100)
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("queue.nats_stream", "ANALYSIS")
	v.SetDefault("queue.nats_subject", "analysis.tasks")
	v.SetDefault("queue.nats_durable", "analysis-workers")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.stuck_task_age", 30*time.Minute)
	v.SetDefault("worker.stuck_task_check_interval", 5*time.Minute)

	v.SetDefault("intake.data_dir", "data")
	v.SetDefault("intake.max_upload_bytes", int64(10<<20))
	v.SetDefault("intake.cleanup_after_analysis", false)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
}
