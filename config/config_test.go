package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_CONNECTION_URI", "postgres://localhost/escalator")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DbDriver)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "work-items.escalated", cfg.EventsTopic)
	assert.Equal(t, "escalator:cycle", cfg.LockKey)
	assert.Equal(t, 4*time.Minute, cfg.LockTtl)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.QueueHostPorts)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_CONNECTION_URI", "file:escalator.db")
	t.Setenv("INTERVAL", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("QUEUE_HOST_PORTS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSqlite, cfg.DbDriver)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.QueueHostPorts)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_MissingConnectionURI(t *testing.T) {
	t.Setenv("DB_CONNECTION_URI", "")
	require.NoError(t, os.Unsetenv("DB_CONNECTION_URI"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{DbDriver: DriverPostgres, Interval: time.Minute, PageSize: 10, BatchSize: 10}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.DbDriver = "mysql" }, true},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, true},
		{"redis without ttl", func(c *Config) { c.RedisAddr = "localhost:6379" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
