// Package config provides configuration management for contextd.
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and environment variables with the CONTEXTD_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the contextd service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	NLP       NLPConfig       `yaml:"nlp"`
	Security  SecurityConfig  `yaml:"security"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // default: 127.0.0.1
	Port int    `yaml:"port"` // default: 7171
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Engine is the storage backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DataPath is the sqlite data directory (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the lib/pq connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NLPConfig configures the remote text-analysis and embedding services.
type NLPConfig struct {
	AnalyzerURL     string        `yaml:"analyzer_url"`
	AnalyzerAPIKey  string        `yaml:"analyzer_api_key"`
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"` // default: 5s

	EmbedderURL     string        `yaml:"embedder_url"`
	EmbedderAPIKey  string        `yaml:"embedder_api_key"`
	EmbedderTimeout time.Duration `yaml:"embedder_timeout"` // default: 10s
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// Mode is development or production (default: development).
	// Development mode skips API token checks.
	Mode string `yaml:"mode"`

	// APIToken is the bearer token required in production mode.
	APIToken string `yaml:"api_token"`
}

// RetrievalConfig holds search defaults, overridable per request.
type RetrievalConfig struct {
	DefaultLimit  int     `yaml:"default_limit"`  // default: 10
	MinSimilarity float64 `yaml:"min_similarity"` // default: 0.3
	IncludeRecent int     `yaml:"include_recent"` // default: 3
}

// LoadConfig builds the configuration. An empty path skips the file layer;
// otherwise the YAML file is required to exist and parse. Environment
// variables are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "postgres" {
		return nil, fmt.Errorf("config: unknown storage engine %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == "postgres" && cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("config: postgres engine requires a DSN")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7171,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		NLP: NLPConfig{
			AnalyzerTimeout: 5 * time.Second,
			EmbedderTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			Mode: "development",
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:  10,
			MinSimilarity: 0.3,
			IncludeRecent: 3,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("CONTEXTD_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("CONTEXTD_PORT", cfg.Server.Port)

	cfg.Storage.Engine = getEnv("CONTEXTD_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("CONTEXTD_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("CONTEXTD_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.NLP.AnalyzerURL = getEnv("CONTEXTD_ANALYZER_URL", cfg.NLP.AnalyzerURL)
	cfg.NLP.AnalyzerAPIKey = getEnv("CONTEXTD_ANALYZER_API_KEY", cfg.NLP.AnalyzerAPIKey)
	cfg.NLP.AnalyzerTimeout = getEnvDuration("CONTEXTD_ANALYZER_TIMEOUT", cfg.NLP.AnalyzerTimeout)
	cfg.NLP.EmbedderURL = getEnv("CONTEXTD_EMBEDDER_URL", cfg.NLP.EmbedderURL)
	cfg.NLP.EmbedderAPIKey = getEnv("CONTEXTD_EMBEDDER_API_KEY", cfg.NLP.EmbedderAPIKey)
	cfg.NLP.EmbedderTimeout = getEnvDuration("CONTEXTD_EMBEDDER_TIMEOUT", cfg.NLP.EmbedderTimeout)

	cfg.Security.Mode = getEnv("CONTEXTD_SECURITY_MODE", cfg.Security.Mode)
	cfg.Security.APIToken = getEnv("CONTEXTD_API_TOKEN", cfg.Security.APIToken)

	cfg.Retrieval.DefaultLimit = getEnvInt("CONTEXTD_SEARCH_LIMIT", cfg.Retrieval.DefaultLimit)
	cfg.Retrieval.MinSimilarity = getEnvFloat("CONTEXTD_MIN_SIMILARITY", cfg.Retrieval.MinSimilarity)
	cfg.Retrieval.IncludeRecent = getEnvInt("CONTEXTD_INCLUDE_RECENT", cfg.Retrieval.IncludeRecent)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("5s", "250ms")
// or returns a default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
