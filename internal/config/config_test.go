package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// chdir moves into a fresh directory so no stray .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	for _, k := range []string{"LIBRARY_DB_PATH", "LIBRARY_SQL_DRIVER", "LIBRARY_LOG_LEVEL", "LIBRARY_LOG_PRETTY", "LIBRARY_WATCH_INTERVAL", "LIBRARY_BCRYPT_COST", "LIBRARY_METRICS_ADDR"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "library.db", cfg.DBPath)
	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchInterval)
	assert.Equal(t, bcrypt.DefaultCost, cfg.PasswordCost)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := chdir(t)
	// godotenv never overrides variables that are already set, even empty ones
	for _, k := range []string{"LIBRARY_DB_PATH", "LIBRARY_SQL_DRIVER"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	env := "LIBRARY_DB_PATH=data/lib.db\nLIBRARY_SQL_DRIVER=sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/lib.db", cfg.DBPath)
	assert.Equal(t, "sqlite", cfg.Driver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t)
	t.Setenv("LIBRARY_WATCH_INTERVAL", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LIBRARY_WATCH_INTERVAL", "1s")
	t.Setenv("LIBRARY_BCRYPT_COST", "99")
	_, err = Load()
	assert.Error(t, err)
}
