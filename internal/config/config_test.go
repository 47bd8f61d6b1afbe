package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToml = `
[development]
host = "localhost"
port = 9000
log_level = "trace"
log_to_stdout = true
postgres_host = "localhost"
postgres_port = "5432"
postgres_db_name = "velodash_dev"
redis_host = "localhost"
redis_port = "6379"
weekly_goal_km = 150.0
pma_watts = 280.0
default_weight_kg = 70.0

[production]
host = "localhost"
port = 8080
log_level = "debug"
logs_path = "/var/log/velodash/service"
postgres_host = "localhost"
postgres_port = "5432"
postgres_db_name = "velodash"
redis_host = "localhost"
redis_port = "6379"
sentry_enabled = true
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testToml), 0o600))

	cfg, err := Load("development", path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "velodash_dev", cfg.PostgresDBName)
	assert.Equal(t, 150.0, cfg.WeeklyGoalKm)
	assert.Equal(t, 280.0, cfg.PmaWatts)

	// defaults kick in for everything the file leaves out
	assert.Equal(t, 8000.0, cfg.YearlyGoalKm)
	assert.Equal(t, 15, cfg.SyncIntervalMinutes)
	assert.Equal(t, 0, cfg.SyncGraceMinutes)
	assert.Equal(t, 180, cfg.WellnessWindowDays)
}

func TestLoad_UnknownEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testToml), 0o600))

	_, err := Load("staging", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown env")
}

func TestLoad_ProdSentry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testToml), 0o600))

	cfg, err := Load("prod", path)
	require.NoError(t, err)
	assert.True(t, cfg.SentryEnabled)
	assert.Equal(t, 200.0, cfg.WeeklyGoalKm)
}
