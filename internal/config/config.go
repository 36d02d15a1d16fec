// Package config provides configuration management for the apply pipeline.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Worker    WorkerConfig
	Dispatch  DispatchConfig
	Dedup     DedupConfig
	Discovery DiscoveryConfig
	Limits    LimitsConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
	// PublicURL is the externally reachable base URL workers call back to.
	PublicURL string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the event log
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration for the daily-cap counters
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// WorkerConfig identifies the remote browser-automation worker pool.
// These used to be read ambiently from the process environment at call
// sites; they are now injected into components at construction.
type WorkerConfig struct {
	BaseURL string
	// CallbackSecret authenticates worker callbacks to this server.
	CallbackSecret string
}

// DispatchConfig bounds the wake-up and handoff calls.
type DispatchConfig struct {
	ProbeTimeout   time.Duration
	SubmitTimeout  time.Duration
	MaxConcurrent  int
	PollInterval   time.Duration
	SelectionBatch int
}

// DedupConfig holds clustering parameters.
type DedupConfig struct {
	SimilarityThreshold float64
	MinTokenLength      int
}

// DiscoverySourceConfig identifies one normalized search endpoint.
type DiscoverySourceConfig struct {
	Name   string
	URL    string
	APIKey string
}

// DiscoveryConfig holds the configured search sources.
type DiscoveryConfig struct {
	Sources []DiscoverySourceConfig
}

// LimitsConfig holds per-user resource caps.
type LimitsConfig struct {
	DailyApplications int
	APIRequestsPerSec int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			Host:      getEnv("SERVER_HOST", "0.0.0.0"),
			PublicURL: getEnv("SERVER_PUBLIC_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "aijobapply"),
				User:           getEnv("POSTGRES_USER", "apply"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "aijobapply"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Worker: WorkerConfig{
			BaseURL:        getEnv("WORKER_URL", ""),
			CallbackSecret: getEnv("WORKER_CALLBACK_SECRET", ""),
		},
		Dispatch: DispatchConfig{
			ProbeTimeout:   getEnvAsDuration("DISPATCH_PROBE_TIMEOUT", 10*time.Second),
			SubmitTimeout:  getEnvAsDuration("DISPATCH_SUBMIT_TIMEOUT", 30*time.Second),
			MaxConcurrent:  getEnvAsInt("DISPATCH_MAX_CONCURRENT", 3),
			PollInterval:   getEnvAsDuration("DISPATCH_POLL_INTERVAL", 5*time.Second),
			SelectionBatch: getEnvAsInt("DISPATCH_SELECTION_BATCH", 20),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: getEnvAsFloat("DEDUP_SIMILARITY_THRESHOLD", 0.8),
			MinTokenLength:      getEnvAsInt("DEDUP_MIN_TOKEN_LENGTH", 3),
		},
		Discovery: DiscoveryConfig{
			Sources: parseDiscoverySources(getEnv("DISCOVERY_SOURCES", "")),
		},
		Limits: LimitsConfig{
			DailyApplications: getEnvAsInt("DAILY_APPLICATION_LIMIT", 20),
			APIRequestsPerSec: getEnvAsInt("API_REQUESTS_PER_SEC", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration values that have no safe fallback.
func (c *Config) Validate() error {
	if c.Worker.BaseURL == "" {
		return fmt.Errorf("WORKER_URL is required")
	}
	if c.Worker.CallbackSecret == "" {
		return fmt.Errorf("WORKER_CALLBACK_SECRET is required")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Limits.DailyApplications < 0 {
		return fmt.Errorf("DAILY_APPLICATION_LIMIT cannot be negative")
	}
	return nil
}

// parseDiscoverySources parses the DISCOVERY_SOURCES variable, a
// comma-separated list of name=url pairs. Each source may carry an API key
// in DISCOVERY_APIKEY_<NAME>.
func parseDiscoverySources(raw string) []DiscoverySourceConfig {
	if raw == "" {
		return nil
	}

	var sources []DiscoverySourceConfig
	for _, pair := range strings.Split(raw, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || url == "" {
			continue
		}
		sources = append(sources, DiscoverySourceConfig{
			Name:   name,
			URL:    url,
			APIKey: os.Getenv("DISCOVERY_APIKEY_" + strings.ToUpper(name)),
		})
	}
	return sources
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
