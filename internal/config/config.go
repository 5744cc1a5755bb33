package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverSQLite   = "sqlite"
)

type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTSecret            string
	JWTIssuer            string
	StartConflictRetries int
	TimerWebhookURL      string
	ShutdownTimeout      time.Duration
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if _, err := c.DatabaseDriver(); err != nil {
		return err
	}
	if c.StartConflictRetries <= 0 {
		return fmt.Errorf("START_CONFLICT_RETRIES must be positive, got %d", c.StartConflictRetries)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	if c.TimerWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.TimerWebhookURL); err != nil {
			return fmt.Errorf("TIMER_WEBHOOK_URL is invalid: %w", err)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "JWT_SECRET", value: c.JWTSecret},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DatabaseDriver picks the store implementation from the DATABASE_URL scheme.
func (c *Config) DatabaseDriver() (string, error) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return DatabaseDriverPostgres, nil
	case strings.HasPrefix(c.DatabaseURL, "sqlite:"):
		return DatabaseDriverSQLite, nil
	default:
		return "", fmt.Errorf("DATABASE_URL must start with postgres:// or sqlite:, got %q", c.DatabaseURL)
	}
}

// SQLitePath strips the sqlite: scheme. "sqlite::memory:" yields ":memory:".
func (c *Config) SQLitePath() string {
	p := strings.TrimPrefix(c.DatabaseURL, "sqlite:")
	return strings.TrimPrefix(p, "//")
}

type ClientConfig struct {
	APIURL          string
	Token           string
	BatchWindow     time.Duration
	TimeCacheTTL    time.Duration
	SessionCacheTTL time.Duration
	CommentCacheTTL time.Duration
	RequestTimeout  time.Duration
}

func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("TASKTIMER_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("TASKTIMER_API_URL is invalid: %w", err)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{name: "TASKTIMER_BATCH_WINDOW", value: c.BatchWindow},
		{name: "TASKTIMER_TIME_CACHE_TTL", value: c.TimeCacheTTL},
		{name: "TASKTIMER_SESSION_CACHE_TTL", value: c.SessionCacheTTL},
		{name: "TASKTIMER_COMMENT_CACHE_TTL", value: c.CommentCacheTTL},
		{name: "TASKTIMER_REQUEST_TIMEOUT", value: c.RequestTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}
