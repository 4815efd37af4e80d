package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtmp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Sync.DetailConcurrency)
	assert.Equal(t, 30, cfg.Sync.DetailTimeoutSecs)
	assert.Equal(t, 900, cfg.Sync.RunTimeoutSecs)
	assert.Equal(t, 60, cfg.Sync.IntervalMins)
	assert.False(t, cfg.Sync.Sweep)
	assert.Equal(t, 30, cfg.Collect.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Collect.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Collect.MaxRetries)
	assert.Equal(t, 15, cfg.Enrich.TimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	chtmp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /var/lib/bidsync/listings.db
log:
  level: debug
  format: console
server:
  port: 9090
sync:
  detail_concurrency: 8
  sweep: true
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/bidsync/listings.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Sync.DetailConcurrency)
	assert.True(t, cfg.Sync.Sweep)
	// Defaults still apply for unset values
	assert.Equal(t, 900, cfg.Sync.RunTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtmp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BIDSYNC_STORE_DRIVER", "postgres")
	t.Setenv("BIDSYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtmp(t)

	t.Setenv("BIDSYNC_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestSyncDurations(t *testing.T) {
	cfg := SyncConfig{DetailTimeoutSecs: 30, RunTimeoutSecs: 900, LockMaxAgeMins: 30, IntervalMins: 60}
	assert.Equal(t, "30s", cfg.DetailTimeout().String())
	assert.Equal(t, "15m0s", cfg.RunTimeout().String())
	assert.Equal(t, "30m0s", cfg.LockMaxAge().String())
	assert.Equal(t, "1h0m0s", cfg.Interval().String())
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "bidsync.db"
	cfg.Sync.DetailConcurrency = 4
	cfg.Sync.DetailTimeoutSecs = 30
	cfg.Sync.RunTimeoutSecs = 900
	cfg.Sync.IntervalMins = 60
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSync_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/bidsync"
	assert.NoError(t, cfg.Validate("sync"))
}

func TestValidateSync_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Sync.DetailConcurrency = 0
	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "detail_concurrency must be between 1 and 32")

	cfg.Sync.DetailConcurrency = 33
	err = cfg.Validate("sync")
	assert.Error(t, err)

	cfg.Sync.DetailConcurrency = 32
	assert.NoError(t, cfg.Validate("sync"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
