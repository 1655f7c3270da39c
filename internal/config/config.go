package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the posture recording service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	BatchSize            int
	MaxConcurrentUploads int
	UploadTimeout        time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "postura"),
		AllowAnyOrigin:   false,
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		// A batch is also the bounded data-loss window on upload
		// failure, so keep it small enough to lose gracefully.
		BatchSize:            50,
		MaxConcurrentUploads: 4,
		UploadTimeout:        10 * time.Second,
		ShutdownTimeout:      15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.BatchSize, err = intFromEnv("RECORDER_BATCH_SIZE", cfg.BatchSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentUploads, err = intFromEnv("RECORDER_MAX_CONCURRENT_UPLOADS", cfg.MaxConcurrentUploads)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadTimeout, err = durationFromEnv("RECORDER_UPLOAD_TIMEOUT", cfg.UploadTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("RECORDER_BATCH_SIZE must be positive")
	}
	if cfg.MaxConcurrentUploads <= 0 {
		return Config{}, fmt.Errorf("RECORDER_MAX_CONCURRENT_UPLOADS must be positive")
	}
	if cfg.UploadTimeout < time.Second {
		return Config{}, fmt.Errorf("RECORDER_UPLOAD_TIMEOUT must be at least 1s")
	}
	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}
