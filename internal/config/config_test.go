package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "greenlife", cfg.Database.Database)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "health_monitor", cfg.Dashboard.TelemetryPath)
	assert.Equal(t, "patients/", cfg.Dashboard.ProfilePathPrefix)
	assert.Equal(t, 20, cfg.Dashboard.WindowSize)
	assert.Equal(t, "rtdb:", cfg.Channel.KeyPrefix)
	assert.Equal(t, time.Second, cfg.Channel.BlockTimeout)
	assert.Equal(t, time.Second, cfg.Channel.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.Channel.MaxBackoff)
	assert.Equal(t, 10*time.Second, cfg.Bridge.CommandTimeout)
	assert.Equal(t, ":9101", cfg.Bridge.OpsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Redis.PoolSize)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout)
	assert.Empty(t, cfg.HTTP.AllowedOrigins)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("TELEMETRY_PATH", "ward_a/health_monitor")
	t.Setenv("TREND_WINDOW_SIZE", "50")
	t.Setenv("DASHBOARD_TIMEZONE", "UTC")
	t.Setenv("BRIDGE_COMMAND_TIMEOUT", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_POOL_SIZE", "40")
	t.Setenv("DASHBOARD_ALLOWED_ORIGINS", "https://ward.example.org, https://nurse.example.org,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "ward_a/health_monitor", cfg.Dashboard.TelemetryPath)
	assert.Equal(t, 50, cfg.Dashboard.WindowSize)
	assert.Equal(t, 3*time.Second, cfg.Bridge.CommandTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 40, cfg.Redis.PoolSize)
	assert.Equal(t, []string{"https://ward.example.org", "https://nurse.example.org"}, cfg.HTTP.AllowedOrigins)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	os.Clearenv()
	t.Setenv("TREND_WINDOW_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)

	os.Clearenv()
	t.Setenv("DASHBOARD_TIMEZONE", "Mars/Olympus")

	_, err = Load()
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	assert.Equal(t, "test-value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default-value", getEnv("NON_EXISTENT_VAR", "default-value"))
	assert.Equal(t, 7, getEnvInt("NON_EXISTENT_VAR", 7))
}
