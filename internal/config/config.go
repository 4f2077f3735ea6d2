// CodeLab configuration
// Environment-driven configuration with fail-fast secret validation

package config

import (
	"fmt"
	"os"
	"strconv"

	"codelab/internal/db"
)

// Config holds the application configuration loaded from the environment.
type Config struct {
	Port        string
	Environment string
	JWTSecret   string
	RedisURL    string
	CORSOrigins string

	Database *db.Config
}

// Load reads configuration from environment variables. godotenv is applied by
// the caller before Load so .env files work in development.
func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisURL:    os.Getenv("REDIS_URL"),
		CORSOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
		Database: &db.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "codelab"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "codelab"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
	}
	return cfg
}

// Validate checks required secrets. In production a missing or weak JWT
// secret is fatal; development falls back to a fixed dev-only secret.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-only-insecure-secret"
	}
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
