package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEngineEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"TICK_INTERVAL_MS", "USE_POLLING", "STALE_THRESHOLD_MS", "DATABASE_PATH",
		"WEBHOOK_BASE_URL", "WEBHOOK_SIGNING_KEY_CURRENT", "WEBHOOK_SIGNING_KEY_NEXT",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"EXTERNAL_SCHEDULER_URL", "EXTERNAL_SCHEDULER_API_KEY", "HEALTH_PORT", "METRICS_PORT",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEngineEnv(t)
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.TickInterval)
	assert.True(t, cfg.UsePolling)
	assert.Equal(t, time.Hour, cfg.StaleThreshold)
	assert.Equal(t, 8080, cfg.HealthPort)
}

func TestLoad_TickIntervalFloor(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("TICK_INTERVAL_MS", "500")
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, minTickInterval, cfg.TickInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("USE_POLLING", "false")
	t.Setenv("DATABASE_PATH", "/tmp/custom.db")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.False(t, cfg.UsePolling)
	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
}

func TestLoad_YAMLOverridesSigningKeys(t *testing.T) {
	clearEngineEnv(t)
	dir := t.TempDir()
	path := dir + "/signing.yaml"
	require.NoError(t, os.WriteFile(path, []byte("webhookSigningKeyCurrent: cur\nwebhookSigningKeyNext: next\n"), 0o600))

	cfg, err := Load("", path)
	require.NoError(t, err)

	assert.Equal(t, "cur", cfg.WebhookSigningKeyCurrent)
	assert.Equal(t, "next", cfg.WebhookSigningKeyNext)
}
