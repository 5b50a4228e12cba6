// Package server provides configuration helpers that define runtime defaults,
// validation, and tuning parameters for the Courier service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-sender message rate limiting
// on the unary send endpoints.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings. It is plain data: the
// values are injected into NewServer rather than read from process-wide
// state, so tests run with fresh configuration per instance.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	WorkerPoolSize int
	SecretTTL      time.Duration
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          50,
			RefillInterval: time.Second,
		},
		WorkerPoolSize: 1,
		SecretTTL:      10 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 50
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}

	if cfg.SecretTTL <= 0 {
		cfg.SecretTTL = 10 * time.Second
	}

	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all
// settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// Load SERVER_PORT
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	// Load RATE_LIMIT_BURST
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	// Load RATE_LIMIT_REFILL_INTERVAL
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSecondsValue(interval, cfg.RateLimit.RefillInterval)
	}

	// Load WORKER_POOL_SIZE
	if workers := os.Getenv("WORKER_POOL_SIZE"); workers != "" {
		cfg.WorkerPoolSize = parseIntValue(workers, cfg.WorkerPoolSize)
	}

	// Load SECRET_TTL_SECONDS
	if ttl := os.Getenv("SECRET_TTL_SECONDS"); ttl != "" {
		cfg.SecretTTL = parseSecondsValue(ttl, cfg.SecretTTL)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSecondsValue(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
