package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/DukeRupert/stateless/internal/crypto"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Auth cookie
	// CookieSecret derives the token encryption key. Rotating it logs out
	// every client.
	CookieSecret string
	// CookieMaxAge is nil for session cookies; the token payload still
	// expires after the default lifetime.
	CookieMaxAge *time.Duration
	// SecureCookie adds the Secure directive and HSTS. Defaults to true
	// outside development.
	SecureCookie bool

	// Login rate limiting: failed attempts per client IP within the window
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string

	// TraceExporter selects where auth filter spans go: "stdout" or "none".
	// Defaults to stdout in development.
	TraceExporter string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Env:      env,
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		CookieSecret: os.Getenv("COOKIE_SECRET"),
		SecureCookie: getEnvBool("SECURE_COOKIE", env != "development"),

		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		TraceExporter: getEnv("TRACE_EXPORTER", defaultTraceExporter(env)),
	}

	if value := os.Getenv("COOKIE_MAX_AGE"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("COOKIE_MAX_AGE: %w", err)
		}
		cfg.CookieMaxAge = &d
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DatabaseUrl, validation.Required.Error("DATABASE_URL is required")),
		validation.Field(&c.CookieSecret,
			validation.Required.Error("COOKIE_SECRET is required"),
			validation.RuneLength(crypto.MinSecretLength, 0).
				Error(fmt.Sprintf("COOKIE_SECRET must be at least %d characters", crypto.MinSecretLength)),
		),
		validation.Field(&c.CookieMaxAge, validation.By(validateMaxAge)),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LoginRateLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.LoginRateWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.TraceExporter, validation.In(TraceExporterNone, TraceExporterStdout).
			Error("TRACE_EXPORTER must be none or stdout")),
	)
}

func defaultTraceExporter(env string) string {
	if env == "development" {
		return TraceExporterStdout
	}
	return TraceExporterNone
}

// validateMaxAge accepts nil or any duration of at least one second.
func validateMaxAge(value interface{}) error {
	var d time.Duration
	switch v := value.(type) {
	case *time.Duration:
		if v == nil {
			return nil
		}
		d = *v
	case time.Duration:
		d = v
	default:
		return nil
	}
	if d < time.Second {
		return fmt.Errorf("COOKIE_MAX_AGE must be at least 1s, got %s", d)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
