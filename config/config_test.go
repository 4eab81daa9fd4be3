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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Database.OpTimeout)
	assert.Equal(t, "Asia/Jakarta", cfg.Clock.Timezone)
	assert.Equal(t, 420*time.Minute, cfg.Clock.DeviceOffset)
	assert.Equal(t, 2*time.Minute, cfg.Devices.LivenessTimeout)
	assert.True(t, cfg.Devices.SweepOn())
	assert.Equal(t, time.Duration(0), cfg.Ledger.MinScanInterval)
	assert.Equal(t, "memory", cfg.LastTag.Backend)
	assert.Equal(t, 5*time.Minute, cfg.LastTag.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: SQLite
  dsn: "file:gate.db"
clock:
  device_offset_minutes: 0
devices:
  sweep_enabled: false
ledger:
  min_scan_interval_seconds: 30
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("LASTTAG_BACKEND", "redis")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:gate.db", cfg.Database.DSN)
	assert.Equal(t, time.Duration(0), cfg.Clock.DeviceOffset)
	assert.False(t, cfg.Devices.SweepOn())
	assert.Equal(t, 30*time.Second, cfg.Ledger.MinScanInterval)
	assert.Equal(t, "redis", cfg.LastTag.Backend)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [")
	_, err := Load(path)
	assert.Error(t, err)
}
