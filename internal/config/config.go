// Package config provides configuration loading for mistral-ocr.
// Values are layered: built-in defaults, an optional YAML settings file,
// .env files, environment variables, then command-line overrides applied
// by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/mistral-ocr/internal/domain"
)

const (
	DefaultModel         = "mistral-ocr-latest"
	DefaultBaseURL       = "https://api.mistral.ai"
	DefaultMaxFileSizeMB = 50
	DefaultMaxPages      = 1000
	DefaultTimeout       = 5 * time.Minute
	DefaultOutputFolder  = "mistral_ocr_output"
	MaxConcurrency       = 16
)

// Config holds all configuration for a run.
type Config struct {
	APIKey        string        `yaml:"-"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	MaxFileSizeMB int           `yaml:"max_file_size_mb"`
	MaxPages      int           `yaml:"max_pages"`
	IncludeImages bool          `yaml:"include_images"`
	Recursive     bool          `yaml:"recursive"`
	Concurrency   int           `yaml:"concurrency"`
	Timeout       time.Duration `yaml:"timeout"`
	Overwrite     bool          `yaml:"overwrite"`
	Verbose       bool          `yaml:"verbose"`
	Log           LogConfig     `yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// LoadOptions selects the optional files Load reads.
type LoadOptions struct {
	ConfigFile string // YAML settings file; falls back to $MISTRAL_OCR_CONFIG
	EnvFile    string // .env file that must exist; when empty ./.env is tried
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		MaxFileSizeMB: DefaultMaxFileSizeMB,
		MaxPages:      DefaultMaxPages,
		IncludeImages: true,
		Concurrency:   1,
		Timeout:       DefaultTimeout,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, files and the environment.
// It does not validate; call Validate once command-line overrides are applied.
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv("MISTRAL_OCR_CONFIG")
	}
	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("env file not found: %s", opts.EnvFile), err)
		}
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("failed to load env file %s", opts.EnvFile), err)
		}
	} else {
		_ = godotenv.Load() // Ignore error if .env doesn't exist
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadFile merges a YAML settings file into cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return domain.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	cfg.APIKey = getEnv("MISTRAL_API_KEY", cfg.APIKey)
	cfg.Model = getEnv("MISTRAL_MODEL", cfg.Model)
	cfg.BaseURL = getEnv("MISTRAL_BASE_URL", cfg.BaseURL)
	cfg.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", cfg.MaxFileSizeMB)
	cfg.MaxPages = getEnvAsInt("MAX_PAGES", cfg.MaxPages)
	cfg.IncludeImages = getEnvAsBool("INCLUDE_IMAGES", cfg.IncludeImages)
	cfg.Verbose = getEnvAsBool("VERBOSE", cfg.Verbose)
	cfg.Concurrency = getEnvAsInt("MISTRAL_OCR_CONCURRENCY", cfg.Concurrency)
	cfg.Timeout = getDuration("MISTRAL_OCR_TIMEOUT", cfg.Timeout)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return domain.ConfigError("MISTRAL_API_KEY not found: set it in the environment, a .env file, or pass --api-key", nil)
	}
	if strings.TrimSpace(c.Model) == "" {
		return domain.ConfigError("model cannot be empty", nil)
	}
	if c.BaseURL == "" {
		return domain.ConfigError("base_url cannot be empty", nil)
	}
	if c.MaxFileSizeMB <= 0 {
		return domain.ConfigError(fmt.Sprintf("max_file_size_mb must be positive, got %d", c.MaxFileSizeMB), nil)
	}
	if c.MaxPages < 0 {
		return domain.ConfigError(fmt.Sprintf("max_pages cannot be negative, got %d", c.MaxPages), nil)
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return domain.ConfigError(fmt.Sprintf("concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency), nil)
	}
	if c.Timeout <= 0 {
		return domain.ConfigError(fmt.Sprintf("timeout must be positive, got %v", c.Timeout), nil)
	}
	return nil
}

// MaxFileSize returns the file size ceiling in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// LogLevel returns the effective log level, forcing debug in verbose mode.
func (c *Config) LogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.Log.Level
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
