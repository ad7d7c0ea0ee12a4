package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TMDB_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.themoviedb.org", cfg.BaseURL)
	assert.Equal(t, 501, cfg.MaxPages)
	assert.Equal(t, 300*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.PopularDelay)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "data/raw", cfg.RawDir)
	assert.Equal(t, "data/processed", cfg.ProcessedDir)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "data/tmdb_etl.db", cfg.DSN())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.S3Bucket)
	assert.Error(t, cfg.RequireAPIKey())
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TMDB_API_KEY", "secret")
	t.Setenv("MAX_PAGES", "5")
	t.Setenv("REQUEST_DELAY_MS", "0")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("S3_BUCKET", "movies")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.APIKey)
	assert.NoError(t, cfg.RequireAPIKey())
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, time.Duration(0), cfg.DelayFor("top_rated"))
	assert.Equal(t, 200*time.Millisecond, cfg.DelayFor("popular"))
	assert.Equal(t, "movies", cfg.S3Bucket)
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "dbname=tmdb_etl")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	// godotenv never overrides variables that are already set, so make
	// sure this one is unset for the duration of the test.
	t.Setenv("TMDB_API_KEY", "")
	require.NoError(t, os.Unsetenv("TMDB_API_KEY"))
	t.Cleanup(func() { _ = os.Unsetenv("TMDB_API_KEY") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TMDB_API_KEY=from-file\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdirTemp(t)

	t.Setenv("STORE_DRIVER", "oracle")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("MAX_PAGES", "0")
	_, err = Load()
	assert.Error(t, err)
}
