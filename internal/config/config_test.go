package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, StoreFile, cfg.Store.Type)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
api_url: https://api.eddits.example/api
timeout: 10s
store:
  type: bolt
  dir: /tmp/eddits
cache:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.eddits.example/api", cfg.APIURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, StoreBolt, cfg.Store.Type)
	assert.Equal(t, "/tmp/eddits", cfg.Store.Dir)
	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Cache.Dir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "api_url: https://file.example/api\n")

	t.Setenv("EDDITS_API_URL", "https://env.example/api")
	t.Setenv("EDDITS_TIMEOUT", "5s")
	t.Setenv("EDDITS_STORE_TYPE", "memory")
	t.Setenv("EDDITS_CACHE_DIR", "/tmp/cache")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example/api", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/cache", cfg.Cache.Dir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "relative url", body: "api_url: /api\n"},
		{name: "bad scheme", body: "api_url: ftp://host/api\n"},
		{name: "zero timeout", body: "timeout: 0s\n"},
		{name: "unknown store", body: "store:\n  type: redis\n"},
		{name: "bad env timeout", env: map[string]string{"EDDITS_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "api_url: [unterminated\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestGetEnv(t *testing.T) {
	t.Setenv("EDDITS_TEST_VALUE", "")
	assert.Equal(t, "fallback", GetEnv("EDDITS_TEST_VALUE", "fallback"))

	t.Setenv("EDDITS_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnv("EDDITS_TEST_VALUE", "fallback"))
}
