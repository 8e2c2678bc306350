// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Detection parameters
	FriendDegree        int     // D: social radius for the reference neighborhood
	TrackedPurchases    int     // T: max reference purchases drawn from the neighborhood
	Sigma               float64 // k: flag when amount > mean + k*stddev
	SeedHistoryEligible bool    // whether batch-seeded purchases count as reference data

	// Ingest
	StripeWebhookSecret string // enables POST /v1/ingest/stripe when set
	RateLimitRPM        int    // per-IP requests per minute on ingest routes

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

// Defaults. Detection defaults match the canonical sample workload.
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultFriendDegree     = 3
	DefaultTrackedPurchases = 50
	DefaultSigma            = 3.0
	DefaultRateLimitRPM     = 120
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		FriendDegree:        getEnvInt("FRIEND_DEGREE", DefaultFriendDegree),
		TrackedPurchases:    getEnvInt("TRACKED_PURCHASES", DefaultTrackedPurchases),
		Sigma:               getEnvFloat("SIGMA_THRESHOLD", DefaultSigma),
		SeedHistoryEligible: getEnvBool("SEED_HISTORY_ELIGIBLE", true),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		RateLimitRPM:        getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the detection parameters. These are fatal at startup:
// a bad D, T, or sigma cannot be recovered from per-event.
func (c *Config) Validate() error {
	if c.FriendDegree < 1 {
		return fmt.Errorf("FRIEND_DEGREE must be a positive integer, got %d", c.FriendDegree)
	}
	if c.TrackedPurchases < 1 {
		return fmt.Errorf("TRACKED_PURCHASES must be a positive integer, got %d", c.TrackedPurchases)
	}
	if c.Sigma < 0 {
		return fmt.Errorf("SIGMA_THRESHOLD must be non-negative, got %g", c.Sigma)
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("RATE_LIMIT_RPM must be a positive integer, got %d", c.RateLimitRPM)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
