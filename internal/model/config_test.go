package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendNone, cfg.Sync.Backend)
	assert.Equal(t, time.Minute, cfg.Sync.Interval())
	assert.Equal(t, time.Second, cfg.Draft.Debounce())
}

func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Device.ID = "device-1"
	cfg.Sync.Backend = BackendHTTP
	cfg.Sync.URL = "https://planner.example.com"
	cfg.Sync.UserID = "user-1"
	cfg.Metrics.Addr = "127.0.0.1:9464"
	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "device-1", got.Device.ID)
	assert.Equal(t, BackendHTTP, got.Sync.Backend)
	assert.Equal(t, "https://planner.example.com", got.Sync.URL)
	assert.Equal(t, "user-1", got.Sync.UserID)
	assert.Equal(t, "127.0.0.1:9464", got.Metrics.Addr)
}

func TestLoadConfig_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "sync:\n  backend: carrier-pigeon\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown sync backend")
}

func TestLoadConfig_ClampsNonPositiveDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "sync:\n  interval_sec: 0\n  timeout_sec: -5\ndraft:\n  debounce_ms: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Sync.IntervalSec)
	assert.Equal(t, 30, cfg.Sync.TimeoutSec)
	assert.Equal(t, 1000, cfg.Draft.DebounceMs)
}
