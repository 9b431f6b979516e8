package config

import (
	"context"
	"testing"
	"time"

	"docdb-binder/internal/shared/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db:27017")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendMongoDB, cfg.Backend)
	assert.Equal(t, "docdb", cfg.DatabaseID)
	assert.True(t, cfg.AutoCreateDatabase)
	assert.Equal(t, 4, cfg.ProvisioningConcurrency)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, 10*time.Second, cfg.Mongo.ConnectTimeout)
	assert.False(t, cfg.Redis.ChangeFeedEnabled)
	assert.Equal(t, int64(10000), cfg.Redis.StreamMaxLength)
	assert.Equal(t, "localhost:3000", cfg.Server.Addr())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MONGODB_DATABASE", "db1")
	t.Setenv("AUTO_CREATE_DB", "false")
	t.Setenv("PROVISIONING_CONCURRENCY", "8")
	t.Setenv("MONGODB_CONNECT_TIMEOUT", "3s")
	t.Setenv("CHANGE_FEED_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CHANGE_STREAM_MAX_LEN", "50")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SERVER_PORT", "8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "db1", cfg.DatabaseID)
	assert.False(t, cfg.AutoCreateDatabase)
	assert.Equal(t, 8, cfg.ProvisioningConcurrency)
	assert.Equal(t, 3*time.Second, cfg.Mongo.ConnectTimeout)
	assert.True(t, cfg.Redis.ChangeFeedEnabled)
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
	assert.Equal(t, int64(50), cfg.Redis.StreamMaxLength)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("PROVISIONING_CONCURRENCY", "many")

	_, err := LoadConfig()
	assert.True(t, errors.IsConfiguration(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "cosmos" }, "STORE_BACKEND"},
		{"mongo without uri", func(c *Config) { c.Mongo.URI = "" }, "MONGODB_URI"},
		{"empty database", func(c *Config) { c.DatabaseID = "" }, "MONGODB_DATABASE"},
		{"database with slash", func(c *Config) { c.DatabaseID = "a/b" }, "MONGODB_DATABASE"},
		{"zero concurrency", func(c *Config) { c.ProvisioningConcurrency = 0 }, "PROVISIONING_CONCURRENCY"},
		{"feed without host", func(c *Config) { c.Redis.ChangeFeedEnabled = true; c.Redis.Host = "" }, "REDIS_HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("memory backend needs no uri", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendMemory
		cfg.Mongo.URI = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Host = mr.Host()
	cfg.Port = mr.Port()
	cfg.ConnMaxIdleTime = "not-a-duration"

	client := NewRedisClient(cfg)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, mr.Addr(), client.Options().Addr)
	assert.Equal(t, 30*time.Minute, client.Options().ConnMaxIdleTime)
	require.NoError(t, client.Ping(context.Background()).Err())
}
