package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("env variables fill the config", func(t *testing.T) {
		t.Setenv("TRACELOFT_POSTGRES_URL", "postgres://localhost/traceloft")
		t.Setenv("TRACELOFT_PORT", "8181")
		t.Setenv("TRACELOFT_READ_TIMEOUT", "20s")
		t.Setenv("TRACELOFT_OTEL_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/traceloft", cfg.Database.URL)
		assert.Equal(t, "8181", cfg.Server.Port)
		assert.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
		assert.True(t, cfg.Observability.OTelEnabled)
	})

	t.Run("yaml file overlays defaults, env overrides yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file/traceloft
server:
  port: "7070"
outbox:
  janitor_schedule: "@every 10m"
`), 0o600))
		t.Setenv("TRACELOFT_CONFIG_FILE", path)
		t.Setenv("TRACELOFT_PORT", "6060")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://file/traceloft", cfg.Database.URL)
		assert.Equal(t, "6060", cfg.Server.Port)
		assert.Equal(t, "@every 10m", cfg.Outbox.JanitorSchedule)
	})

	t.Run("missing postgres URL fails validation", func(t *testing.T) {
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres URL")
	})

	t.Run("colliding ports fail validation", func(t *testing.T) {
		t.Setenv("TRACELOFT_POSTGRES_URL", "postgres://localhost/traceloft")
		t.Setenv("TRACELOFT_PORT", "9090")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("archival without a bucket fails validation", func(t *testing.T) {
		t.Setenv("TRACELOFT_POSTGRES_URL", "postgres://localhost/traceloft")
		t.Setenv("TRACELOFT_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S3 bucket")
	})
}
