package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	Environment string

	// URLs
	BaseURL     string // Backend URL (e.g., http://localhost:8080)
	FrontendURL string // Frontend URL (e.g., http://localhost:3000)

	// Assistant runtime
	RuntimeURL          string        // WebSocket URL of the assistant runtime
	RuntimeReadyTimeout time.Duration // How long to wait for session.ready after connect
	HistoryPollInterval time.Duration // Transcript poll fallback interval
	SessionIdleTimeout  time.Duration // Idle sessions are closed after this

	// JWT auth
	JWTSecret   string
	AdminAPIKey string

	// Access (OTP) delivery
	CodeTTL     time.Duration
	SMSEndpoint string // HTTP endpoint of the SMS relay; empty disables SMS
	RelayURL    string // MCP mail relay URL; empty falls back to SMTP/log
	RelayOrigin string // Origin header presented to the mail relay

	// SMTP (used when RelayURL is empty)
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Telemetry
	OTLPEndpoint string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:  envOrDefault("LISTEN_ADDR", ":8080"),
		DatabaseURL: envOrDefault("DATABASE_URL", "file:teleglass.db"),
		Environment: envOrDefault("ENVIRONMENT", "development"),

		BaseURL:     envOrDefault("BASE_URL", "http://localhost:8080"),
		FrontendURL: envOrDefault("FRONTEND_URL", "http://localhost:3000"),

		RuntimeURL:          envOrDefault("RUNTIME_URL", "ws://localhost:9100/runtime"),
		RuntimeReadyTimeout: durationOrDefault("RUNTIME_READY_TIMEOUT", 10*time.Second),
		HistoryPollInterval: durationOrDefault("HISTORY_POLL_INTERVAL", time.Second),
		SessionIdleTimeout:  durationOrDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		JWTSecret:   envOrDefault("JWT_SECRET", "dev-jwt-secret-change-in-production"),
		AdminAPIKey: envOrDefault("API_KEY", "dev-api-key"),

		CodeTTL:     durationOrDefault("CODE_TTL", 10*time.Minute),
		SMSEndpoint: os.Getenv("SMS_ENDPOINT"),
		RelayURL:    os.Getenv("RELAY_URL"),
		RelayOrigin: os.Getenv("RELAY_ORIGIN"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envOrDefault("SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     envOrDefault("SMTP_FROM", "noreply@teleglass.app"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
