package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	GenerationURL   string
	IngestURL       string // when set, events are relayed through this server's ingestion endpoint
	DefaultRoom     string
	PresenceTimeout time.Duration
	AllowedOrigins  string
	Environment     string // development, staging, production
}

// Load loads configuration from environment variables and validates for
// production.
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		GenerationURL:   getEnv("GENERATION_URL", "http://localhost:9090"),
		IngestURL:       getEnv("INGEST_URL", ""),
		DefaultRoom:     getEnv("DEFAULT_ROOM", "lobby"),
		PresenceTimeout: getDurationMs("PRESENCE_TIMEOUT_MS", 30*time.Second),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for correctness.
func (c *Config) Validate() error {
	if c.PresenceTimeout <= 0 {
		return fmt.Errorf("PRESENCE_TIMEOUT_MS must be positive")
	}

	if c.IsProduction() {
		if c.GenerationURL == "" {
			return fmt.Errorf("GENERATION_URL must be set in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is a wildcard in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationMs(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("Invalid %s value %q, using default", key, value)
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
