package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the exporter reads
const EnvPrefix = "BSKY2GEM_"

// Config holds all configuration options for the exporter
type Config struct {
	// Network services used for resolution, discovery and listing
	Service ServiceConfig `yaml:"service" json:"service"`

	// Request pacing against the hosting server
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy for rate-limited listing requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Archive output
	Output OutputConfig `yaml:"output" json:"output"`

	// Token budget check
	Tokens TokensConfig `yaml:"tokens" json:"tokens"`

	// Local state database
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServiceConfig holds the public AT Protocol endpoints
type ServiceConfig struct {
	PublicURL        string        `yaml:"public_url" json:"public_url"`
	PLCDirectory     string        `yaml:"plc_directory" json:"plc_directory"`
	CDNURL           string        `yaml:"cdn_url" json:"cdn_url"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" json:"discovery_timeout"`
	// RequestTimeout bounds listing requests; zero leaves the HTTP client default
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	PageSize       int           `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute of zero disables pacing
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry configuration for rate-limited requests
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// OutputConfig holds archive output configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// TokensConfig holds the token budget configuration
type TokensConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Limit        int     `yaml:"limit" json:"limit"`
	SafetyMargin float64 `yaml:"safety_margin" json:"safety_margin"`
	Estimator    string  `yaml:"estimator" json:"estimator"`
	Encoding     string  `yaml:"encoding" json:"encoding"`
	// AutoConfirm answers the trim prompt: "" asks, "yes" or "no" answer it
	AutoConfirm string `yaml:"auto_confirm" json:"auto_confirm"`
}

// StoreConfig holds the local SQLite state configuration
type StoreConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Path            string        `yaml:"path" json:"path"`
	CacheIdentities bool          `yaml:"cache_identities" json:"cache_identities"`
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			PublicURL:        "https://bsky.social",
			PLCDirectory:     "https://plc.directory",
			CDNURL:           "https://cdn.bsky.app/img/feed_fullsize/plain",
			DiscoveryTimeout: 10 * time.Second,
			RequestTimeout:   0,
			UserAgent:        "bsky-to-gem/1.0",
			PageSize:         100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		Output: OutputConfig{
			Directory: ".",
		},
		Tokens: TokensConfig{
			Enabled:      true,
			Limit:        950000,
			SafetyMargin: 0.1,
			Estimator:    "tiktoken",
			Encoding:     "cl100k_base",
		},
		Store: StoreConfig{
			Enabled:         true,
			CacheIdentities: false,
			CacheTTL:        24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getenv("PUBLIC_URL"); v != "" {
		c.Service.PublicURL = v
	}
	if v := getenv("PLC_DIRECTORY"); v != "" {
		c.Service.PLCDirectory = v
	}
	if v := getenv("CDN_URL"); v != "" {
		c.Service.CDNURL = v
	}
	if v := getenv("USER_AGENT"); v != "" {
		c.Service.UserAgent = v
	}
	if v := getenv("DISCOVERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDISCOVERY_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Service.DiscoveryTimeout = d
		}
	}
	if v := getenv("REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_MINUTE: %w", EnvPrefix, err))
		} else {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := getenv("OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := getenv("TOKEN_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTOKEN_LIMIT: %w", EnvPrefix, err))
		} else {
			c.Tokens.Limit = n
		}
	}
	if v := getenv("ESTIMATOR"); v != "" {
		c.Tokens.Estimator = v
	}
	if v := getenv("AUTO_CONFIRM"); v != "" {
		c.Tokens.AutoConfirm = strings.ToLower(v)
	}
	if v := getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("STORE_ENABLED"); v != "" {
		c.Store.Enabled = strings.ToLower(v) == "true"
	}
	if v := getenv("CACHE_IDENTITIES"); v != "" {
		c.Store.CacheIdentities = strings.ToLower(v) == "true"
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in the standard locations
func FindConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".bsky-to-gem.yaml",
		".bsky-to-gem.yml",
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".config", "bsky-to-gem", "config.yaml"),
			filepath.Join(home, ".config", "bsky-to-gem", "config.yml"),
			filepath.Join(home, ".bsky-to-gem.yaml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	for name, raw := range map[string]string{
		"service.public_url":    c.Service.PublicURL,
		"service.plc_directory": c.Service.PLCDirectory,
		"service.cdn_url":       c.Service.CDNURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Service.DiscoveryTimeout <= 0 {
		errs = append(errs, errors.New("discovery timeout must be positive"))
	}
	if c.Service.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout cannot be negative"))
	}
	if c.Service.PageSize < 1 || c.Service.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if c.Tokens.Limit <= 0 {
		errs = append(errs, errors.New("token limit must be positive"))
	}
	if c.Tokens.SafetyMargin < 0 || c.Tokens.SafetyMargin > 1 {
		errs = append(errs, errors.New("token safety margin must be between 0 and 1"))
	}
	validEstimators := map[string]bool{"tiktoken": true, "chars": true}
	if !validEstimators[strings.ToLower(c.Tokens.Estimator)] {
		errs = append(errs, fmt.Errorf("invalid token estimator %q", c.Tokens.Estimator))
	}
	validAnswers := map[string]bool{"": true, "yes": true, "no": true}
	if !validAnswers[strings.ToLower(c.Tokens.AutoConfirm)] {
		errs = append(errs, fmt.Errorf("invalid auto confirm value %q", c.Tokens.AutoConfirm))
	}

	if c.Store.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["token-limit"].(int); ok && v > 0 {
		c.Tokens.Limit = v
	}
	if v, ok := flags["estimator"].(string); ok && v != "" {
		c.Tokens.Estimator = v
	}
	if v, ok := flags["auto-confirm"].(string); ok {
		c.Tokens.AutoConfirm = v
	}
	if v, ok := flags["no-trim"].(bool); ok && v {
		c.Tokens.Enabled = false
	}
	if v, ok := flags["cache"].(bool); ok {
		c.Store.CacheIdentities = v
	}
	if v, ok := flags["public-url"].(string); ok && v != "" {
		c.Service.PublicURL = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".bsky-to-gem.env"))
	}

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
