// Package config loads client configuration from defaults, an optional YAML
// profile and EDDITS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL  = "http://localhost:8000/api"
	DefaultTimeout = 30 * time.Second

	apiURLEnvVar    = "EDDITS_API_URL"
	timeoutEnvVar   = "EDDITS_TIMEOUT"
	storeTypeEnvVar = "EDDITS_STORE_TYPE"
	storeDirEnvVar  = "EDDITS_STORE_DIR"
	cacheDirEnvVar  = "EDDITS_CACHE_DIR"
)

// Store types.
const (
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds client configuration.
type Config struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Type string `yaml:"type"`
	Dir  string `yaml:"dir"` // empty means ~/.eddits/session
}

// CacheConfig enables HTTP caching of GET responses.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty means in-memory
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		APIURL:  DefaultAPIURL,
		Timeout: DefaultTimeout,
		Store: StoreConfig{
			Type: StoreFile,
		},
	}
}

// DefaultPath returns ~/.eddits/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".eddits", "config.yaml")
}

// Load reads configuration. A missing file at path is not an error; the
// defaults and environment still apply. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			log.Debug().Str("path", path).Msg("loaded config file")
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("path", path).Msg("no config file, using defaults")
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIURL = GetEnv(apiURLEnvVar, c.APIURL)
	c.Store.Type = GetEnv(storeTypeEnvVar, c.Store.Type)
	c.Store.Dir = GetEnv(storeDirEnvVar, c.Store.Dir)

	if dir := os.Getenv(cacheDirEnvVar); dir != "" {
		c.Cache.Enabled = true
		c.Cache.Dir = dir
	}

	if v := os.Getenv(timeoutEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, timeoutEnvVar, err)
		}
		c.Timeout = d
	}

	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api url %q must be absolute", ErrInvalidConfig, c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: api url scheme %q not supported", ErrInvalidConfig, u.Scheme)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be greater than 0", ErrInvalidConfig)
	}

	switch c.Store.Type {
	case StoreFile, StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type)
	}

	return nil
}

// GetEnv returns the value of envVar, or defaultValue when it is unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
