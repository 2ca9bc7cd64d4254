// Package config provides configuration management for ratlr.
// Process settings are loaded from environment variables with the RATLR_
// prefix (optionally seeded from a .env file) and fall back to sensible
// defaults. Provider credentials use the variable names of the respective
// services (OPENAI_API_KEY, OLLAMA_HOST, ...).
//
// Pipeline configurations, which map every pipeline role to a module name and
// its arguments, are loaded separately with LoadPipeline.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level settings.
type Config struct {
	Storage StorageConfig
	LLM     LLMConfig
	Run     RunConfig
}

// StorageConfig contains cache and similarity storage settings.
type StorageConfig struct {
	CacheDriver string // Fingerprint cache backend: sqlite, postgres (default: sqlite)
	CacheDSN    string // PostgreSQL DSN when CacheDriver is postgres
	StoreDSN    string // PostgreSQL DSN for postgres element stores
	DataPath    string // Default storage directory (default: ./storage)
}

// LLMConfig contains oracle and embedding provider settings.
type LLMConfig struct {
	OpenAIAPIKey      string        // OpenAI API key
	OpenAIBaseURL     string        // OpenAI API base URL (default: https://api.openai.com/v1)
	OllamaURL         string        // Ollama API URL (default: http://localhost:11434)
	OllamaUser        string        // Basic auth user for a protected Ollama host
	OllamaPassword    string        // Basic auth password for a protected Ollama host
	AnthropicAPIKey   string        // Anthropic API key
	RequestsPerSecond float64       // Client side request limit, 0 disables (default: 0)
	RetryDelay        time.Duration // Delay before the single retry after a rate limit (default: 60s)
	Timeout           time.Duration // HTTP timeout per request (default: 120s)
}

// RunConfig contains execution settings.
type RunConfig struct {
	Workers     int    // Sources classified concurrently (default: 1)
	LogLevel    string // debug, info, warn, error (default: info)
	Development bool   // Human readable console logging (default: false)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. Each given env file is loaded first if it exists; variables that
// are already set in the environment take precedence over file values.
func LoadConfig(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}

	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.CacheDriver {
	case "sqlite":
	case "postgres":
		if c.Storage.CacheDSN == "" {
			return fmt.Errorf("%w: RATLR_CACHE_DSN is required for the postgres cache", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrConfiguration, c.Storage.CacheDriver)
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("%w: RATLR_WORKERS must be at least 1", ErrConfiguration)
	}
	return nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			CacheDriver: getEnv("RATLR_CACHE_DRIVER", "sqlite"),
			CacheDSN:    getEnv("RATLR_CACHE_DSN", ""),
			StoreDSN:    getEnv("RATLR_STORE_DSN", ""),
			DataPath:    getEnv("RATLR_DATA_PATH", "./storage"),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OllamaURL:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
			OllamaUser:        getEnv("OLLAMA_USER", ""),
			OllamaPassword:    getEnv("OLLAMA_PASSWORD", ""),
			AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
			RequestsPerSecond: getEnvFloat("RATLR_REQUESTS_PER_SECOND", 0),
			RetryDelay:        getEnvDuration("RATLR_RETRY_DELAY", 60*time.Second),
			Timeout:           getEnvDuration("RATLR_HTTP_TIMEOUT", 120*time.Second),
		},
		Run: RunConfig{
			Workers:     getEnvInt("RATLR_WORKERS", 1),
			LogLevel:    getEnv("RATLR_LOG_LEVEL", "info"),
			Development: getEnvBool("RATLR_LOG_DEVELOPMENT", false),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") as well as plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
