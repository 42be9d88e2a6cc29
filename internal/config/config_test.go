package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":6000"
  max_clients: 50
  requests_per_sec: 10
database:
  path: `+filepath.Join(t.TempDir(), "db", "test.db")+`
redis:
  enabled: true
  address: "localhost:6379"
  cache_ttl_seconds: 60
booking:
  lock_wait_seconds: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Server.Address)
	assert.Equal(t, 50, cfg.Server.MaxClients)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.LockWait())
}

func TestLoadDefaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	path := writeConfig(t, "database:\n  path: "+dbPath+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.Server.Address)
	assert.Equal(t, 100, cfg.Server.MaxClients)
	assert.Equal(t, 20, cfg.Server.RequestsPerSec)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 10*time.Second, cfg.LockWait())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())

	// The database directory is created on load.
	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("COURTBOOK_REDIS_ADDR", "redis.internal:6379")
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "test.db")+`
redis:
  address: "${COURTBOOK_REDIS_ADDR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
