package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/courier/cache"
	"github.com/ceyewan/courier/dispatch"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(context.Background(), WithConfigPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, cache.DriverMemory, s.Cache.Driver)
	assert.Equal(t, "json", s.Cache.Serializer)
	assert.Equal(t, time.Minute, s.RateLimit.CleanupInterval)
	assert.Equal(t, 5*time.Minute, s.RateLimit.IdleTimeout)
	assert.Equal(t, "127.0.0.1:6379", s.Redis.Addr)
	assert.Equal(t, 5*time.Second, s.Redis.DialTimeout)
	assert.False(t, s.Metrics.Enabled)
	assert.Equal(t, "batch", s.Trace.Batcher)

	def := dispatch.DefaultConfig()
	assert.Equal(t, def.Timeout, s.Client.Timeout)
	assert.Equal(t, def.Retries, s.Client.Retries)
	assert.Equal(t, def.RetryDelay, s.Client.RetryDelay)
	assert.Equal(t, def.APIKeyHeader, s.Client.APIKeyHeader)
	assert.Equal(t, uint32(5), s.Client.Breaker.FailureThreshold)
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
client:
  base_url: https://api.example.com
  retries: 2
  executor:
    user_agent: billing
trace:
  sampler: 0.5
`)
	t.Setenv("COURIER_CACHE_DRIVER", "redis")
	t.Setenv("COURIER_REDIS_ADDR", "redis:6380")
	t.Setenv("COURIER_CLIENT_RETRIES", "4")
	t.Setenv("COURIER_CLIENT_RETRY_DELAY", "250ms")
	t.Setenv("COURIER_CLIENT_BREAKER_ENABLED", "true")

	s, err := LoadSettings(context.Background(), WithConfigPaths(dir))
	require.NoError(t, err)

	assert.Equal(t, cache.DriverRedis, s.Cache.Driver)
	assert.Equal(t, "redis:6380", s.Redis.Addr)
	assert.Equal(t, "https://api.example.com", s.Client.BaseURL)
	assert.Equal(t, 4, s.Client.Retries)
	assert.Equal(t, 250*time.Millisecond, s.Client.RetryDelay)
	assert.True(t, s.Client.Breaker.Enabled)
	assert.Equal(t, "billing", s.Client.Executor.UserAgent)
	assert.InDelta(t, 0.5, s.Trace.Sampler, 1e-9)

	c, err := dispatch.New(&s.Client)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestLoadSettingsCustomPrefix(t *testing.T) {
	t.Setenv("BILLING_LOG_LEVEL", "debug")
	s, err := LoadSettings(context.Background(), WithConfigPaths(t.TempDir()), WithEnvPrefix("billing"))
	require.NoError(t, err)
	assert.Equal(t, "debug", s.Log.Level)
}
