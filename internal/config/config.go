// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the service needs. GROQ_API_KEYS is comma
// delimited; its order is failover precedence and is preserved.
type Config struct {
	TelegramBotToken string   `envconfig:"TELEGRAM_BOT_TOKEN"`
	WebhookSecret    string   `envconfig:"WEBHOOK_SECRET"`
	WebhookURL       string   `envconfig:"WEBHOOK_URL"`
	GroqAPIKeys      []string `envconfig:"GROQ_API_KEYS"`
	GroqBaseURL      string   `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GroqModel        string   `envconfig:"GROQ_MODEL" default:"whisper-large-v3"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	CacheNamespace string `envconfig:"CACHE_NAMESPACE" default:"echoscribe"`

	MaxDurationMinutes int           `envconfig:"MAX_DURATION_MINUTES" default:"30"`
	MaxFileSizeMB      int           `envconfig:"MAX_FILE_SIZE_MB" default:"20"`
	HandlerTimeout     time.Duration `envconfig:"HANDLER_TIMEOUT" default:"50s"`
	UpstreamTimeout    time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"60s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env if present, then parses the environment and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the pipeline cannot run without and drops
// empty entries from the credential list.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	keys := c.GroqAPIKeys[:0]
	for _, k := range c.GroqAPIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.GroqAPIKeys = keys
	if len(c.GroqAPIKeys) == 0 {
		return fmt.Errorf("GROQ_API_KEYS must contain at least one key")
	}

	if c.MaxDurationMinutes <= 0 {
		return fmt.Errorf("MAX_DURATION_MINUTES must be positive")
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}
	return nil
}

// MaxDuration returns the media duration ceiling.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationMinutes) * time.Minute
}

// MaxFileSize returns the media size ceiling in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Redacted returns a copy safe for printing: secrets are masked, the
// credential list is reduced to its length.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"telegram_bot_token":   mask(c.TelegramBotToken),
		"webhook_secret":       mask(c.WebhookSecret),
		"webhook_url":          c.WebhookURL,
		"groq_api_keys":        fmt.Sprintf("%d key(s)", len(c.GroqAPIKeys)),
		"groq_base_url":        c.GroqBaseURL,
		"groq_model":           c.GroqModel,
		"listen_addr":          c.ListenAddr,
		"redis_addr":           c.RedisAddr,
		"redis_db":             c.RedisDB,
		"cache_namespace":      c.CacheNamespace,
		"max_duration_minutes": c.MaxDurationMinutes,
		"max_file_size_mb":     c.MaxFileSizeMB,
		"handler_timeout":      c.HandlerTimeout.String(),
		"upstream_timeout":     c.UpstreamTimeout.String(),
		"log_level":            c.LogLevel,
	}
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
