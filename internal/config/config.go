package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	// RedisURL is optional. Without it the retry lease falls back to a
	// Postgres advisory lock and the API key salt stays in process.
	RedisURL string `env:"REDIS_URL"`

	NumWorkers     int           `env:"NUM_WORKERS" envDefault:"50"`
	QueueSize      int           `env:"QUEUE_SIZE" envDefault:"1000"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`

	AppKey                string `env:"APP_KEY"`
	APIKeySalt            string `env:"API_KEY_SALT"`
	WebhookFallbackSecret string `env:"WEBHOOK_FALLBACK_SECRET"`

	RetrySchedule    string        `env:"RETRY_SCHEDULE" envDefault:"*/5 * * * *"`
	RetryLease       time.Duration `env:"RETRY_LEASE" envDefault:"15m"`
	RetryBatchSize   int           `env:"RETRY_BATCH_SIZE" envDefault:"50"`
	PruneSchedule    string        `env:"PRUNE_SCHEDULE" envDefault:"0 2 * * *"`
	LogRetentionDays int           `env:"LOG_RETENTION_DAYS" envDefault:"30"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	return &cfg, cfg.validate()
}

// LoadFrom parses configuration from the given variables only.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

func (c *Config) validate() error {
	switch {
	case c.NumWorkers < 1:
		return fmt.Errorf("%w: NUM_WORKERS must be at least 1", ErrInvalidConfig)
	case c.QueueSize < 0:
		return fmt.Errorf("%w: QUEUE_SIZE must not be negative", ErrInvalidConfig)
	case c.WebhookTimeout <= 0:
		return fmt.Errorf("%w: WEBHOOK_TIMEOUT must be positive", ErrInvalidConfig)
	case c.RetryLease <= 0:
		return fmt.Errorf("%w: RETRY_LEASE must be positive", ErrInvalidConfig)
	case c.RetryBatchSize < 1:
		return fmt.Errorf("%w: RETRY_BATCH_SIZE must be at least 1", ErrInvalidConfig)
	case c.LogRetentionDays < 1:
		return fmt.Errorf("%w: LOG_RETENTION_DAYS must be at least 1", ErrInvalidConfig)
	}
	return nil
}
