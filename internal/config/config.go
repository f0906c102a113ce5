package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Provider   ProviderConfig   `mapstructure:"provider" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Upload     UploadConfig     `mapstructure:"upload" validate:"required"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// PublicBaseURL is the externally reachable origin used to build upload
	// URLs and the provider callback URL.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// related headers. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// DatabaseConfig selects and configures the task store backend.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" validate:"required,oneof=postgres sqlite memory"`
	URL         string `mapstructure:"url" validate:"required_unless=Driver memory"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// ProviderConfig contains the NanoBanana API settings.
type ProviderConfig struct {
	BaseURL            string `mapstructure:"base_url" validate:"required,url"`
	APIKey             string `mapstructure:"api_key" validate:"required"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	RetryCount         int    `mapstructure:"retry_count" validate:"gte=0,lte=10"`
	MaxConcurrentCalls int    `mapstructure:"max_concurrent_calls" validate:"gt=0"`
	QueueSize          int    `mapstructure:"queue_size" validate:"gt=0"`
}

// Timeout returns the per-request provider timeout.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GenerationConfig bounds generation requests and status polling.
type GenerationConfig struct {
	MaxPromptLength     int      `mapstructure:"max_prompt_length" validate:"gt=0"`
	MaxImages           int      `mapstructure:"max_images" validate:"gte=0"`
	MaxUploadMB         int      `mapstructure:"max_upload_mb" validate:"gt=0"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds" validate:"gt=0"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types" validate:"required,min=1,dive,required"`
}

// MaxUploadBytes returns the per-file upload limit in bytes.
func (c GenerationConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// PollInterval returns the minimum time between provider lookups for one task.
func (c GenerationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// UploadConfig contains the local media storage settings.
type UploadConfig struct {
	MediaDir string `mapstructure:"media_dir" validate:"required"`
}

// RateLimitConfig configures the per-client sliding window on task creation.
type RateLimitConfig struct {
	Quota         int `mapstructure:"quota" validate:"gt=0"`
	WindowSeconds int `mapstructure:"window_seconds" validate:"gt=0"`
	MaxKeys       int `mapstructure:"max_keys" validate:"gte=0"`
}

// Window returns the sliding window length.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// AuthConfig contains optional request authentication settings.
type AuthConfig struct {
	// APIKeyHash is a bcrypt hash of the client API key. Empty disables the check.
	APIKeyHash string `mapstructure:"api_key_hash"`
	// CallbackSecret signs callback URL tokens. Empty disables callback tokens.
	CallbackSecret        string `mapstructure:"callback_secret" validate:"omitempty,min=32"`
	CallbackTokenTTLHours int    `mapstructure:"callback_token_ttl_hours" validate:"gt=0"`
}

// CallbackTokenTTL returns how long a callback token stays valid.
func (c AuthConfig) CallbackTokenTTL() time.Duration {
	return time.Duration(c.CallbackTokenTTLHours) * time.Hour
}

// CacheConfig configures the optional Redis cache of terminal task results.
type CacheConfig struct {
	RedisURL   string `mapstructure:"redis_url" validate:"omitempty,url"`
	TTLMinutes int    `mapstructure:"ttl_minutes" validate:"gt=0"`
}

// TTL returns how long a cached result is kept.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// SweepConfig configures the background poll of stale tasks.
type SweepConfig struct {
	// Schedule is a cron spec; empty disables the sweeper.
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size" validate:"gt=0"`
}
