package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/config"
)

func unsetAll(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	unsetAll(t, "MEMENTO_PORT", "MEMENTO_HOST", "MEMORY_STORAGE_BACKEND",
		"MEMORY_EMBEDDED_PATH", "MEMORY_BACKUPS_PATH", "MEMORY_ENABLE_WAL",
		"CONSOLIDATION_ENABLED", "LOG_LEVEL")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6363, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "embedded", cfg.Storage.Backend)
	assert.Equal(t, "./data/sqlite_vec.db", cfg.Storage.EmbeddedPath)
	assert.Equal(t, "./data/backups", cfg.Storage.BackupsPath)
	assert.True(t, cfg.Storage.EnableWAL)
	assert.True(t, cfg.Consolidation.Enabled)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadConfig_StorageOverrides(t *testing.T) {
	t.Setenv("MEMORY_STORAGE_BACKEND", "cloud")
	t.Setenv("MEMORY_EMBEDDED_PATH", "/tmp/custom/memento.db")
	t.Setenv("MEMORY_SQL_PRAGMAS", "journal_mode=WAL,synchronous=NORMAL")
	t.Setenv("MEMORY_ENABLE_WAL", "false")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "cloud", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/custom/memento.db", cfg.Storage.EmbeddedPath)
	assert.Equal(t, "journal_mode=WAL,synchronous=NORMAL", cfg.Storage.SQLPragmas)
	assert.False(t, cfg.Storage.EnableWAL)
}

func TestLoadConfig_CloudOverrides(t *testing.T) {
	t.Setenv("CLOUD_API_TOKEN", "tok-123")
	t.Setenv("CLOUD_ACCOUNT_ID", "acct-456")
	t.Setenv("CLOUD_VECTOR_INDEX", "memories-idx")
	t.Setenv("CLOUD_LARGE_CONTENT_THRESHOLD", "4096")
	t.Setenv("CLOUD_MAX_RETRIES", "5")
	t.Setenv("CLOUD_BASE_DELAY", "250ms")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Cloud.APIToken)
	assert.Equal(t, "acct-456", cfg.Cloud.AccountID)
	assert.Equal(t, "memories-idx", cfg.Cloud.VectorIndex)
	assert.Equal(t, 4096, cfg.Cloud.LargeContentThreshold)
	assert.Equal(t, 5, cfg.Cloud.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Cloud.BaseDelay)
}

func TestLoadConfig_ConsolidationOverrides(t *testing.T) {
	t.Setenv("CONSOLIDATION_ENABLED", "false")
	t.Setenv("DECAY_ENABLED", "false")
	t.Setenv("RETENTION_CRITICAL", "730")
	t.Setenv("SCHEDULE_DAILY", "04:30")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Consolidation.Enabled)
	assert.False(t, cfg.Consolidation.DecayEnabled)
	assert.Equal(t, 730.0, cfg.Consolidation.RetentionCritical)
	assert.Equal(t, "04:30", cfg.Consolidation.ScheduleDaily)
}

func TestLoadConfig_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMENTO_PORT", "not-a-number")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6363, cfg.Server.Port)
}

func TestLoadConfig_InvalidBoolFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMORY_ENABLE_WAL", "not-a-bool")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Storage.EnableWAL)
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}
