// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the API process. All variables are
// prefixed ASSETBLOCK_.
type Config struct {
	// Listen address of the HTTP server.
	Addr string
	// PostgreSQL DSN. Empty means the in-memory registry (dev mode).
	PGDSN string
	// Token TTL issued by the dev token endpoint.
	TokenTTL time.Duration
	// Per-IP rate limit.
	RateBurst  int
	RatePerSec int
	// Upper bound for an uploaded file, in bytes.
	MaxUploadBytes int64
	// Graceful shutdown window.
	ShutdownTimeout time.Duration
}

// Load reads the environment (after godotenv picks up a .env file, if one
// exists) and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getEnv("ASSETBLOCK_ADDR", ":8080"),
		PGDSN:           getEnv("ASSETBLOCK_PG_DSN", ""),
		TokenTTL:        getEnvDuration("ASSETBLOCK_TOKEN_TTL", 24*time.Hour),
		RateBurst:       getEnvInt("ASSETBLOCK_RATE_BURST", 20),
		RatePerSec:      getEnvInt("ASSETBLOCK_RATE_PER_SEC", 10),
		MaxUploadBytes:  getEnvInt64("ASSETBLOCK_MAX_UPLOAD_BYTES", 25<<20),
		ShutdownTimeout: getEnvDuration("ASSETBLOCK_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("ASSETBLOCK_TOKEN_TTL must be positive")
	}
	if cfg.RateBurst <= 0 || cfg.RatePerSec <= 0 {
		return Config{}, fmt.Errorf("rate limit settings must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("ASSETBLOCK_MAX_UPLOAD_BYTES must be positive")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
