package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"DATABASE_URL": "postgres://localhost/hookrelay"})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, 50, cfg.NumWorkers)
	assert.Equal(t, 1000, cfg.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, "*/5 * * * *", cfg.RetrySchedule)
	assert.Equal(t, 15*time.Minute, cfg.RetryLease)
	assert.Equal(t, 50, cfg.RetryBatchSize)
	assert.Equal(t, "0 2 * * *", cfg.PruneSchedule)
	assert.Equal(t, 30*24*time.Hour, cfg.LogRetention())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFrom_RequiresDatabaseURL(t *testing.T) {
	_, err := LoadFrom(map[string]string{})
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DATABASE_URL":    "postgres://db/hookrelay",
		"REDIS_URL":       "redis://cache:6379/0",
		"NUM_WORKERS":     "8",
		"WEBHOOK_TIMEOUT": "5s",
		"LOG_LEVEL":       "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	_, err := LoadFrom(map[string]string{"DATABASE_URL": "x", "NUM_WORKERS": "0"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadFrom(map[string]string{"DATABASE_URL": "x", "WEBHOOK_TIMEOUT": "soon"})
	assert.ErrorIs(t, err, ErrParsingConfig)
}
