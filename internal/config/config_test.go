package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evcal.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9000\nweek_start: Monday\nstorage:\n  driver: sqlite\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./var/evcal.db", cfg.Storage.Path)
	assert.Equal(t, "calendar-events", cfg.Storage.Key)
	assert.Equal(t, 7, cfg.Backup.Keep)
	assert.Nil(t, cfg.BasicAuth)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evcal.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	t.Setenv("EVCAL_LISTEN", ":7000")
	t.Setenv("EVCAL_STORAGE_DRIVER", "memory")
	t.Setenv("EVCAL_BACKUP_KEEP", "3")
	t.Setenv("EVCAL_LOG_LEVEL", "debug")
	t.Setenv("EVCAL_IMPORT_ALLOW_PRIVATE_HOSTS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Backup.Keep)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Import.AllowPrivateHosts)
	assert.Equal(t, "./var", cfg.Storage.Path, "unset variables keep file values")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: redis\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "redis")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evcal.yaml")
	cfg := DefaultConfig()
	cfg.Backup.Cron = "0 3 * * *"
	cfg.BasicAuth = &BasicAuthConfig{Username: "me", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
