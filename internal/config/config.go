// Package config provides configuration for chatrelay.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chatrelay configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Remote conversation backend
	RemoteBaseURL  string
	RemoteAPIToken string

	// Offline cache database
	DatabaseURL string

	// Timeouts
	LLMTimeout time.Duration

	// Sync tuning
	SyncInterval    time.Duration
	SyncMinGap      time.Duration
	SyncMaxAttempts int
	SyncBackoffBase time.Duration

	// Identity
	DefaultUserID string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8087),
		RemoteBaseURL:   getEnv("REMOTE_BASE_URL", "http://localhost:8000"),
		RemoteAPIToken:  getEnv("REMOTE_API_TOKEN", ""),
		DatabaseURL:     getEnv("DATABASE_URL", "file:chatrelay.db?cache=shared&mode=rwc"),
		LLMTimeout:      time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		SyncInterval:    time.Duration(getEnvInt("SYNC_INTERVAL_MS", 300000)) * time.Millisecond,
		SyncMinGap:      time.Duration(getEnvInt("SYNC_MIN_GAP_MS", 60000)) * time.Millisecond,
		SyncMaxAttempts: getEnvInt("SYNC_MAX_ATTEMPTS", 3),
		SyncBackoffBase: time.Duration(getEnvInt("SYNC_BACKOFF_BASE_MS", 1000)) * time.Millisecond,
		DefaultUserID:   getEnv("DEFAULT_USER_ID", "default_user"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
