package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.StartConflictRetries != 3 {
		t.Fatalf("unexpected retries: %d", cfg.StartConflictRetries)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	if cfg.Env != "production" {
		t.Fatalf("unexpected env: %s", cfg.Env)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadClient_Overrides(t *testing.T) {
	t.Setenv("TASKTIMER_API_URL", "http://timer.internal:9000")
	t.Setenv("TASKTIMER_BATCH_WINDOW", "40ms")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.APIURL != "http://timer.internal:9000" {
		t.Fatalf("unexpected api url: %s", cfg.APIURL)
	}
	if cfg.BatchWindow != 40*time.Millisecond {
		t.Fatalf("unexpected batch window: %s", cfg.BatchWindow)
	}
	if cfg.SessionCacheTTL != 5*time.Second {
		t.Fatalf("unexpected session cache ttl: %s", cfg.SessionCacheTTL)
	}
}
