package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8082, cfg.Port)
	require.Equal(t, "redis://127.0.0.1/", cfg.RedisURL)
	require.Equal(t, int64(1<<20), cfg.MaxCodeBytes)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.IsProd())
}

func Test_Load_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_URL", "redis://redis:6379/1")
	t.Setenv("WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "redis://redis:6379/1", cfg.RedisURL)
	require.Equal(t, 8, cfg.Workers)
	require.True(t, cfg.IsProd())
}

func Test_LoadProfiles_NoFile(t *testing.T) {
	table, err := Config{}.LoadProfiles()
	require.NoError(t, err)
	require.Contains(t, table, "python")
}

func Test_LoadProfiles_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	data := []byte("python:\n  image: python:3.12-slim\nzig:\n  image: alpine:3.19\n  source_filename: main.zig\n  argv: [zig, run, main.zig]\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	table, err := Config{ProfilesFile: path}.LoadProfiles()
	require.NoError(t, err)
	// Partial override keeps the built-in filename and argv.
	require.Equal(t, "python:3.12-slim", table["python"].Image)
	require.Equal(t, "main.py", table["python"].SourceFilename)
	require.Equal(t, []string{"python", "main.py"}, table["python"].Argv)
	// New tag is added wholesale.
	require.Equal(t, "alpine:3.19", table["zig"].Image)
	require.Equal(t, []string{"zig", "run", "main.zig"}, table["zig"].Argv)
}

func Test_LoadProfiles_MissingFile(t *testing.T) {
	_, err := Config{ProfilesFile: "/nonexistent/profiles.yaml"}.LoadProfiles()
	require.Error(t, err)
}
