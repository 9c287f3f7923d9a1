// Package config provides configuration management for the insights service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Custobar CustobarConfig
	Metrics  MetricsConfig
	Worker   WorkerConfig
	Logging  LoggingConfig
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
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

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CustobarConfig holds Custobar API client configuration
type CustobarConfig struct {
	BaseURL        string
	PageLimit      int           // default page size sent as the "limit" query param
	PageDelay      time.Duration // fixed pause between page fetches
	RequestTimeout time.Duration
	MaxRetries     int
}

// MetricsConfig holds aggregation engine configuration
type MetricsConfig struct {
	LookbackDays int // trailing window defining "recent"/"active"
}

// WorkerConfig holds pipeline worker configuration
type WorkerConfig struct {
	SyncInterval time.Duration // how often the worker sweeps all integrations
	LockTTL      time.Duration // run-lock expiry per integration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "custobar_insights"),
				User:           getEnv("POSTGRES_USER", "insights"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Custobar: CustobarConfig{
			BaseURL:        getEnv("CUSTOBAR_BASE_URL", "https://hopkins.custobar.com/api"),
			PageLimit:      getEnvAsInt("CUSTOBAR_PAGE_LIMIT", 10000),
			PageDelay:      getEnvAsDuration("CUSTOBAR_PAGE_DELAY", time.Second),
			RequestTimeout: getEnvAsDuration("CUSTOBAR_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvAsInt("CUSTOBAR_MAX_RETRIES", 5),
		},
		Metrics: MetricsConfig{
			LookbackDays: getEnvAsInt("METRICS_LOOKBACK_DAYS", 3000),
		},
		Worker: WorkerConfig{
			SyncInterval: getEnvAsDuration("WORKER_SYNC_INTERVAL", 24*time.Hour),
			LockTTL:      getEnvAsDuration("WORKER_LOCK_TTL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Custobar.PageLimit <= 0 {
		return nil, fmt.Errorf("CUSTOBAR_PAGE_LIMIT must be positive, got %d", config.Custobar.PageLimit)
	}
	if config.Metrics.LookbackDays <= 0 {
		return nil, fmt.Errorf("METRICS_LOOKBACK_DAYS must be positive, got %d", config.Metrics.LookbackDays)
	}

	return config, nil
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
