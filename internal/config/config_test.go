package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MEMVAULT_ADDR", ":9090")
	t.Setenv("MEMVAULT_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("MEMVAULT_QUEUE_CAPACITY", "10")
	t.Setenv("MEMVAULT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().SessionTTL, cfg.SessionTTL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7070\"\nsession-ttl: 90s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7070\"\n"), 0o600))
	t.Setenv("MEMVAULT_ADDR", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Addr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MEMVAULT_QUEUE_CAPACITY", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue-capacity")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
