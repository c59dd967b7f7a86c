package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray .env is loaded
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, 5*time.Minute, cfg.Session.JanitorInterval)
	assert.Empty(t, cfg.Redis.Host)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Environment(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "  secret  ")
	t.Setenv("GEMINI_MODEL_NAME", "gemini-2.5-pro")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SESSION_IDLE_TTL", "30m")
	t.Setenv("GO_ENV", "production")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GOOGLE_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Gemini.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	path := filepath.Join(dir, "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9090\"\nsession:\n  janitor_interval: 1m\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, time.Minute, cfg.Session.JanitorInterval)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Gemini:  GeminiConfig{Model: "m"},
		Server:  ServerConfig{MaxUploadBytes: 1},
		Redis:   RedisConfig{Host: "localhost", Port: 70000},
		Session: SessionConfig{IdleTTL: time.Hour},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
	assert.Contains(t, err.Error(), "janitor_interval")
}
