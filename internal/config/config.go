package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "imyrist-billing"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultGatewayBaseURL  = "https://securepay.tinkoff.ru/v2"
	defaultAnalysisPrice   = 199
	defaultTopupMin        = 100
	defaultTopupMax        = 50_000
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// SessionSecret verifies the HS256 session tokens issued by the identity
	// provider; this service only verifies, never issues.
	SessionSecret string

	// Payment gateway credentials. An empty terminal key switches deposits to
	// test mode (immediate credit, no redirect).
	GatewayBaseURL     string
	GatewayTerminalKey string
	GatewaySecretKey   string

	// BaseURL is the public origin used for gateway return URLs and the
	// internal analysis trigger.
	BaseURL       string
	WebhookSecret string

	AnalysisPrice int64
	TopupMin      int64
	TopupMax      int64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		GatewayBaseURL:     getEnv("GATEWAY_BASE_URL", defaultGatewayBaseURL),
		GatewayTerminalKey: os.Getenv("GATEWAY_TERMINAL_KEY"),
		GatewaySecretKey:   os.Getenv("GATEWAY_SECRET_KEY"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", "internal-webhook-secret"),
		AnalysisPrice:      defaultAnalysisPrice,
		TopupMin:           defaultTopupMin,
		TopupMax:           defaultTopupMax,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	amounts := []struct {
		envVar string
		dst    *int64
	}{
		{"ANALYSIS_PRICE", &cfg.AnalysisPrice},
		{"TOPUP_MIN", &cfg.TopupMin},
		{"TOPUP_MAX", &cfg.TopupMax},
	}
	for _, amt := range amounts {
		v := os.Getenv(amt.envVar)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", amt.envVar, v)
		}
		*amt.dst = parsed
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET must be set")
	}

	if cfg.GatewayTerminalKey != "" && cfg.GatewaySecretKey == "" {
		return Config{}, fmt.Errorf("GATEWAY_SECRET_KEY must be set when GATEWAY_TERMINAL_KEY is set")
	}

	if cfg.TopupMin > cfg.TopupMax {
		return Config{}, fmt.Errorf("TOPUP_MIN %d exceeds TOPUP_MAX %d", cfg.TopupMin, cfg.TopupMax)
	}

	return cfg, nil
}

// GatewayConfigured reports whether real payment gateway credentials are present.
func (c Config) GatewayConfigured() bool {
	return c.GatewayTerminalKey != "" && c.GatewaySecretKey != ""
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
