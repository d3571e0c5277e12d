package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, time.Minute, cfg.DashboardCacheTTL)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.NotEmpty(t, cfg.PGDSN)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LOW_STOCK_CRON=\"*/5 * * * *\"\nPG_MAX_CONNS=20\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("LOW_STOCK_CRON")
		_ = os.Unsetenv("PG_MAX_CONNS")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.LowStockCron)
	assert.Equal(t, int32(20), cfg.PGMaxConns)
}

func TestLoadConfigValidation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("lock ttl", func(t *testing.T) {
		t.Setenv("ORDER_LOCK_TTL", "0s")
		_, err := LoadConfig(missing)
		require.Error(t, err)
	})
	t.Run("rate limit", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_PER_MINUTE", "-1")
		_, err := LoadConfig(missing)
		require.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("DASHBOARD_CACHE_TTL", "soon")
		_, err := LoadConfig(missing)
		require.Error(t, err)
	})
}

func TestIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())

	var nilCfg *Config
	assert.False(t, nilCfg.IsProduction())
}
