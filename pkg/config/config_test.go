package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://bsky.social", cfg.Service.PublicURL)
	assert.Equal(t, "https://plc.directory", cfg.Service.PLCDirectory)
	assert.Equal(t, "https://cdn.bsky.app/img/feed_fullsize/plain", cfg.Service.CDNURL)
	assert.Equal(t, 10*time.Second, cfg.Service.DiscoveryTimeout)
	assert.Equal(t, time.Duration(0), cfg.Service.RequestTimeout)
	assert.Equal(t, 100, cfg.Service.PageSize)
	assert.Equal(t, 950000, cfg.Tokens.Limit)
	assert.InDelta(t, 0.1, cfg.Tokens.SafetyMargin, 1e-9)
	assert.True(t, cfg.Tokens.Enabled)
	assert.Equal(t, ".", cfg.Output.Directory)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BSKY2GEM_PUBLIC_URL", "https://entryway.example.com")
	t.Setenv("BSKY2GEM_REQUESTS_PER_MINUTE", "30")
	t.Setenv("BSKY2GEM_OUTPUT_DIR", "/tmp/exports")
	t.Setenv("BSKY2GEM_TOKEN_LIMIT", "1000")
	t.Setenv("BSKY2GEM_ESTIMATOR", "chars")
	t.Setenv("BSKY2GEM_AUTO_CONFIRM", "YES")
	t.Setenv("BSKY2GEM_CACHE_IDENTITIES", "true")
	t.Setenv("BSKY2GEM_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://entryway.example.com", cfg.Service.PublicURL)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "/tmp/exports", cfg.Output.Directory)
	assert.Equal(t, 1000, cfg.Tokens.Limit)
	assert.Equal(t, "chars", cfg.Tokens.Estimator)
	assert.Equal(t, "yes", cfg.Tokens.AutoConfirm)
	assert.True(t, cfg.Store.CacheIdentities)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidNumbers(t *testing.T) {
	t.Setenv("BSKY2GEM_REQUESTS_PER_MINUTE", "lots")
	t.Setenv("BSKY2GEM_DISCOVERY_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUESTS_PER_MINUTE")
	assert.Contains(t, err.Error(), "DISCOVERY_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad public url", func(c *Config) { c.Service.PublicURL = "ftp://bsky.social" }, "service.public_url"},
		{"missing plc directory", func(c *Config) { c.Service.PLCDirectory = "" }, "service.plc_directory"},
		{"page size too large", func(c *Config) { c.Service.PageSize = 500 }, "page size"},
		{"zero discovery timeout", func(c *Config) { c.Service.DiscoveryTimeout = 0 }, "discovery timeout"},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerMinute = -1 }, "requests per minute"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max attempts"},
		{"empty output", func(c *Config) { c.Output.Directory = "" }, "output directory"},
		{"zero token limit", func(c *Config) { c.Tokens.Limit = 0 }, "token limit"},
		{"unknown estimator", func(c *Config) { c.Tokens.Estimator = "gpt" }, "estimator"},
		{"bad answer", func(c *Config) { c.Tokens.AutoConfirm = "maybe" }, "auto confirm"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tokens.Limit = 0
	cfg.Output.Directory = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token limit")
	assert.Contains(t, err.Error(), "output directory")
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Output.Directory = "/srv/archives"
	cfg.Tokens.Limit = 123456
	cfg.Service.DiscoveryTimeout = 3 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/srv/archives", loaded.Output.Directory)
	assert.Equal(t, 123456, loaded.Tokens.Limit)
	assert.Equal(t, 3*time.Second, loaded.Service.DiscoveryTimeout)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens: [unterminated"), 0644))

	err := DefaultConfig().LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  directory: from-file\ntokens:\n  limit: 5000\n"), 0644))
	t.Setenv("BSKY2GEM_TOKEN_LIMIT", "7000")

	cfg, err := Load(path, map[string]interface{}{
		"output":  "from-flag",
		"no-trim": true,
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Output.Directory)
	assert.Equal(t, 7000, cfg.Tokens.Limit)
	assert.False(t, cfg.Tokens.Enabled)
}

func TestLoadRejectsInvalidResult(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")

	_, err = Load("", map[string]interface{}{"estimator": "abacus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
