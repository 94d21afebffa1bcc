package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults_OverridesOnlySetVariables(t *testing.T) {
	t.Setenv("TAKEAWAY_PORT", "7001")
	t.Setenv("TAKEAWAY_PUSH_TRANSPORT", "redis")
	t.Setenv("TAKEAWAY_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("TAKEAWAY_POLL_INTERVAL", "30s")
	t.Setenv("TAKEAWAY_LOG_JSON", "false")

	c, err := EnvDefaults()
	require.NoError(t, err)
	assert.Equal(t, 7001, c.Port)
	assert.Equal(t, "redis", c.PushTransport)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.KafkaBrokers)
	assert.Equal(t, 30*time.Second, c.PollInterval)
	assert.False(t, c.LogJSON)
	assert.Equal(t, "memory", c.BackendMode)
	assert.Equal(t, 5*time.Minute, c.LocationTTL)
}

func TestEnvDefaults_MalformedIsReported(t *testing.T) {
	t.Setenv("TAKEAWAY_BACKEND_URL", "http://orders.internal")
	t.Setenv("TAKEAWAY_POLL_INTERVAL", "15")
	c, err := EnvDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAKEAWAY_")
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Equal(t, Default().PollInterval, c.PollInterval)
	assert.Equal(t, Default().BackendURL, c.BackendURL)
}

func TestLoad_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("TAKEAWAY_ENV=staging\nTAKEAWAY_AMAP_KEY=from-file\n"), 0o600))
	t.Setenv("TAKEAWAY_ENV", "prod")
	t.Setenv("TAKEAWAY_AMAP_KEY", "")
	os.Unsetenv("TAKEAWAY_AMAP_KEY")

	Load(p, filepath.Join(dir, "missing.env"))
	c, err := EnvDefaults()
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, "from-file", c.AMapKey)
}
