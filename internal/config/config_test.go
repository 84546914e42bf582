package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
env: dev
storage:
  dsn: storage/test.db
http_server:
  address: localhost:8082
  write_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "storage/test.db", cfg.Storage.DSN)
	assert.Equal(t, "localhost:8082", cfg.HTTPServer.Address)
	assert.Equal(t, 10*time.Second, cfg.HTTPServer.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.HTTPServer.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTPServer.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "X-User", cfg.Audit.ActorHeader)
	assert.Equal(t, "system", cfg.Audit.DefaultActor)
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Equal(t, time.Minute, cfg.RateLimit.CleanupInterval)
}

func TestLoadZeroIdleTimeoutWithRateLimit(t *testing.T) {
	path := writeConfig(t, `
env: dev
storage:
  dsn: storage/test.db
http_server:
  address: localhost:8082
  idle_timeout: 0s
rate_limit:
  rps: 5
  burst: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.RateLimit.CleanupInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
env: dev
storage:
  dsn: storage/test.db
http_server:
  address: localhost:8082
`)
	t.Setenv("HTTP_SERVER_ADDR", ":9090")
	t.Setenv("RATE_LIMIT_RPS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPServer.Address)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing dsn",
			body: "env: dev\nhttp_server:\n  address: localhost:1\n",
		},
		{
			name: "unknown storage driver",
			body: "env: dev\nstorage:\n  driver: oracle\n  dsn: x\nhttp_server:\n  address: localhost:1\n",
		},
		{
			name: "redis without url",
			body: "env: dev\nstorage:\n  dsn: x\nhttp_server:\n  address: localhost:1\ncache:\n  driver: redis\n",
		},
		{
			name: "rate limit without burst",
			body: "env: dev\nstorage:\n  dsn: x\nhttp_server:\n  address: localhost:1\nrate_limit:\n  rps: 2\n  burst: -1\n",
		},
		{
			name: "rate limit with negative cleanup interval",
			body: "env: dev\nstorage:\n  dsn: x\nhttp_server:\n  address: localhost:1\nrate_limit:\n  rps: 2\n  cleanup_interval: -1s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
