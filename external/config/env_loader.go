package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/tasktimer/internal/config"
)

type envConfig struct {
	Env                  string        `env:"ENV" envDefault:"production"`
	HTTPAddr             string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	JWTSecret            string        `env:"JWT_SECRET,required"`
	JWTIssuer            string        `env:"JWT_ISSUER" envDefault:"tasktimer"`
	StartConflictRetries int           `env:"START_CONFLICT_RETRIES" envDefault:"3"`
	TimerWebhookURL      string        `env:"TIMER_WEBHOOK_URL"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		HTTPAddr:             raw.HTTPAddr,
		DatabaseURL:          raw.DatabaseURL,
		JWTSecret:            raw.JWTSecret,
		JWTIssuer:            raw.JWTIssuer,
		StartConflictRetries: raw.StartConflictRetries,
		TimerWebhookURL:      raw.TimerWebhookURL,
		ShutdownTimeout:      raw.ShutdownTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type clientEnvConfig struct {
	APIURL          string        `env:"TASKTIMER_API_URL" envDefault:"http://localhost:8080"`
	Token           string        `env:"TASKTIMER_TOKEN"`
	BatchWindow     time.Duration `env:"TASKTIMER_BATCH_WINDOW" envDefault:"25ms"`
	TimeCacheTTL    time.Duration `env:"TASKTIMER_TIME_CACHE_TTL" envDefault:"2m"`
	SessionCacheTTL time.Duration `env:"TASKTIMER_SESSION_CACHE_TTL" envDefault:"5s"`
	CommentCacheTTL time.Duration `env:"TASKTIMER_COMMENT_CACHE_TTL" envDefault:"30s"`
	RequestTimeout  time.Duration `env:"TASKTIMER_REQUEST_TIMEOUT" envDefault:"10s"`
}

// LoadClient reads the CLI settings. Validation is left to the caller because
// command-line flags may still override individual fields.
func LoadClient() (*internalconfig.ClientConfig, error) {
	var raw clientEnvConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	return &internalconfig.ClientConfig{
		APIURL:          raw.APIURL,
		Token:           raw.Token,
		BatchWindow:     raw.BatchWindow,
		TimeCacheTTL:    raw.TimeCacheTTL,
		SessionCacheTTL: raw.SessionCacheTTL,
		CommentCacheTTL: raw.CommentCacheTTL,
		RequestTimeout:  raw.RequestTimeout,
	}, nil
}
