// Package config loads environment configuration, with .env support for dev.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime parameters of the core and its binaries.
type Config struct {
	Env         string // dev, prod
	PostgresDSN string // required
	RedisURL    string // optional; short-code cache is disabled when empty

	Issuer         string        // token issuer claim
	Audience       string        // token audience claim
	TokenTTL       time.Duration // one-time join token lifetime
	SessionTTL     time.Duration // follow-up session token lifetime
	ClockSkew      time.Duration // nbf/exp skew tolerance
	SigningKeyPath string        // PEM private key for the local signer; ephemeral when empty (dev)

	JoinBaseURL string // join links are <JoinBaseURL>/j/<shortCode>

	SweepInterval   time.Duration // how often the expiry worker runs
	ShutdownTimeout time.Duration // graceful shutdown timeout
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "dev"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RedisURL:        os.Getenv("REDIS_URL"),
		Issuer:          getEnv("TOKEN_ISSUER", "carelink"),
		Audience:        getEnv("TOKEN_AUDIENCE", "carelink-join"),
		TokenTTL:        getDuration("TOKEN_TTL", 20*time.Minute),
		SessionTTL:      getDuration("SESSION_TOKEN_TTL", 60*time.Minute),
		ClockSkew:       getDuration("CLOCK_SKEW", 120*time.Second),
		SigningKeyPath:  os.Getenv("SIGNING_KEY_PATH"),
		JoinBaseURL:     getEnv("JOIN_BASE_URL", "https://localhost:8443"),
		SweepInterval:   getDuration("SWEEP_INTERVAL", time.Minute),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("POSTGRES_DSN is required")
	}
	if cfg.Env == "prod" && cfg.SigningKeyPath == "" {
		return Config{}, errors.New("SIGNING_KEY_PATH is required in prod")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}
