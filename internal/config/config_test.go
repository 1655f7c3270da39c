package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MetricsNamespace != "postura" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "postura")
	}
	if cfg.BatchSize != 50 {
		t.Fatalf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.MaxConcurrentUploads != 4 {
		t.Fatalf("MaxConcurrentUploads = %d, want 4", cfg.MaxConcurrentUploads)
	}
	if cfg.UploadTimeout != 10*time.Second {
		t.Fatalf("UploadTimeout = %v, want 10s", cfg.UploadTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false default")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("RECORDER_BATCH_SIZE", "25")
	t.Setenv("RECORDER_UPLOAD_TIMEOUT", "3s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("DATABASE_URL", " postgres://localhost/postura ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.BatchSize != 25 {
		t.Fatalf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.UploadTimeout != 3*time.Second {
		t.Fatalf("UploadTimeout = %v, want 3s", cfg.UploadTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
	if cfg.DatabaseURL != "postgres://localhost/postura" {
		t.Fatalf("DatabaseURL = %q, want trimmed value", cfg.DatabaseURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero batch size", "RECORDER_BATCH_SIZE", "0"},
		{"negative batch size", "RECORDER_BATCH_SIZE", "-1"},
		{"unparsable batch size", "RECORDER_BATCH_SIZE", "fifty"},
		{"zero upload slots", "RECORDER_MAX_CONCURRENT_UPLOADS", "0"},
		{"sub-second upload timeout", "RECORDER_UPLOAD_TIMEOUT", "100ms"},
		{"bad bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
		{"bad duration", "APP_SHUTDOWN_TIMEOUT", "soon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"RECORDER_BATCH_SIZE",
		"RECORDER_MAX_CONCURRENT_UPLOADS",
		"RECORDER_UPLOAD_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
