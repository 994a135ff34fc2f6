package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies that default values are used when env vars are missing.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "routeopt", cfg.ServiceName)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)

	assert.Equal(t, "routeopt:requests", cfg.Queue.Name)
	assert.Equal(t, 5*time.Second, cfg.Queue.Wait)
	assert.Equal(t, 15*time.Minute, cfg.Queue.LeaseTimeout)
	assert.Equal(t, 3, cfg.Queue.MaxDeliveries)
	assert.False(t, cfg.Queue.Once)

	assert.Equal(t, "driving-car", cfg.Routing.Profile)
	assert.Equal(t, 5.0, cfg.Routing.RPS)
	assert.Equal(t, 5, cfg.Routing.Burst)
	assert.Equal(t, 30*time.Second, cfg.Routing.Timeout)
	assert.Equal(t, 10, cfg.Routing.BlockSize)
	assert.Equal(t, 4, cfg.Routing.Concurrency)
	assert.True(t, cfg.Routing.DistanceFiller)
	assert.Equal(t, 24*time.Hour, cfg.Routing.CacheTTL)

	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Zero(t, cfg.SearchSeed)
}

// TestLoad_EnvVars verifies that environment variables override defaults.
func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("QUEUE_WAIT", "250ms")
	t.Setenv("WORKER_ONCE", "true")
	t.Setenv("ROUTING_BASE_URL", "https://ors.example.com")
	t.Setenv("ROUTING_RPS", "2.5")
	t.Setenv("ROUTING_DISTANCE_FILLER", "false")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/routeopt")
	t.Setenv("SEARCH_SEED", "42")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.Wait)
	assert.True(t, cfg.Queue.Once)
	assert.Equal(t, "https://ors.example.com", cfg.Routing.BaseURL)
	assert.Equal(t, 2.5, cfg.Routing.RPS)
	assert.False(t, cfg.Routing.DistanceFiller)
	assert.Equal(t, "https://hooks.example.com/routeopt", cfg.Webhook.URL)
	assert.Equal(t, int64(42), cfg.SearchSeed)
}

// TestLoad_File verifies that values are loaded from a .env file.
func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
APP_ENV=staging
LOG_LEVEL=warn
SERVER_PORT=7070
DATABASE_URL=postgres://routeopt@localhost/routeopt
ROUTING_PROFILE=driving-hgv
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), content, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.ServerPort)
	assert.Equal(t, "postgres://routeopt@localhost/routeopt", cfg.DatabaseURL)
	assert.Equal(t, "driving-hgv", cfg.Routing.Profile)
}

// TestLoad_EnvOverridesFile verifies precedence of the environment.
func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=warn\n"), 0o600))
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"block size", "ROUTING_BLOCK_SIZE", "11", "ROUTING_BLOCK_SIZE"},
		{"rps", "ROUTING_RPS", "-1", "ROUTING_RPS"},
		{"deliveries", "QUEUE_MAX_DELIVERIES", "0", "QUEUE_MAX_DELIVERIES"},
		{"port", "SERVER_PORT", "not-a-port", "unable to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_WebhookAttempts(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "0")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_MAX_ATTEMPTS")
}

func TestValidateRequired(t *testing.T) {
	cfg := AppConfig{ServiceName: "routeopt"}
	err := validateRequired(&cfg)
	require.Error(t, err)
	assert.Equal(t, "missing required configuration: QUEUE_NAME", err.Error())

	cfg.Queue.Name = "q"
	assert.NoError(t, validateRequired(&cfg))
}
