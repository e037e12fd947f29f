// Package config collects environment-driven settings. A local .env file is
// honored when present; real environment variables always win.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the binaries need to start.
type Config struct {
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string

	TokenSecret string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	RequestLimitPerMinute int64
	DeviceAutoTrust       bool

	MigrationsDir string
	SeedsDir      string
}

// Load reads configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    getString("AUTHGRID_HTTP_ADDR", ":8080"),
		PostgresDSN: getString("AUTHGRID_PG_DSN", ""),
		RedisAddr:   getString("AUTHGRID_REDIS_ADDR", "127.0.0.1:6379"),

		TokenSecret: getString("AUTHGRID_TOKEN_SECRET", ""),
		AccessTTL:   getDuration("AUTHGRID_ACCESS_TTL", 20*time.Minute),
		RefreshTTL:  getDuration("AUTHGRID_REFRESH_TTL", 10*24*time.Hour),

		RequestLimitPerMinute: getInt64("AUTHGRID_REQUEST_LIMIT_PER_MINUTE", 20),
		DeviceAutoTrust:       getBool("AUTHGRID_DEVICE_AUTO_TRUST", true),

		MigrationsDir: getString("AUTHGRID_MIGRATIONS_DIR", "migrations"),
		SeedsDir:      getString("AUTHGRID_SEEDS_DIR", ""),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
