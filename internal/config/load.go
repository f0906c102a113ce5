package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "BANANA"

// DefaultProviderBaseURL is the public NanoBanana API endpoint.
const DefaultProviderBaseURL = "https://api.nanobananaapi.ai/api/v1/nanobanana"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.trust_proxy_headers", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:banana.db")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("provider.base_url", DefaultProviderBaseURL)
	v.SetDefault("provider.timeout_seconds", 60)
	v.SetDefault("provider.retry_count", 2)
	v.SetDefault("provider.max_concurrent_calls", 8)
	v.SetDefault("provider.queue_size", 64)

	v.SetDefault("generation.max_prompt_length", 800)
	v.SetDefault("generation.max_images", 8)
	v.SetDefault("generation.max_upload_mb", 10)
	v.SetDefault("generation.poll_interval_seconds", 30)
	v.SetDefault("generation.allowed_content_types", []string{"image/jpeg", "image/png", "image/webp"})

	v.SetDefault("upload.media_dir", "media")

	v.SetDefault("rate_limit.quota", 10)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.max_keys", 10000)

	v.SetDefault("auth.api_key_hash", "")
	v.SetDefault("auth.callback_secret", "")
	v.SetDefault("auth.callback_token_ttl_hours", 24)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_minutes", 60)

	v.SetDefault("sweep.schedule", "@every 1m")
	v.SetDefault("sweep.batch_size", 50)
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and BANANA_ environment variables. Environment variables
// take precedence over values from the config file.
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile is Load with an explicit config file. An empty path looks for
// an optional config.yaml in the working directory; an explicit path must exist.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// provider.api_key has no default, so AutomaticEnv alone would not
	// surface it during Unmarshal.
	if err := v.BindEnv("provider.api_key"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
