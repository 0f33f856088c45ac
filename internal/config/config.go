// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first if present; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port         int
	DBPath       string
	StoreDriver  string
	StoreTimeout time.Duration
	LogLevel     slog.Level

	JWTAccessSecret  string
	JWTRefreshSecret string
	CookieSecure     bool

	// GitHub sign-in is enabled only when both id and secret are set.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Edge events go to Kafka when brokers are set, to the log otherwise.
	KafkaBrokers       []string
	KafkaTopic         string
	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	var errs []error

	port, err := getEnvInt("PORT", 8080)
	errs = append(errs, err)
	storeTimeout, err := getEnvDuration("STORE_TIMEOUT", 5*time.Second)
	errs = append(errs, err)
	pollInterval, err := getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	errs = append(errs, err)
	cookieSecure, err := getEnvBool("COOKIE_SECURE", false)
	errs = append(errs, err)

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg := &Config{
		Port:               port,
		DBPath:             getEnv("DB_PATH", "data/botnet.db"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		StoreTimeout:       storeTimeout,
		LogLevel:           level,
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret:   getEnv("JWT_REFRESH_SECRET", ""),
		CookieSecure:       cookieSecure,
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "social.edges"),
		OutboxPollInterval: pollInterval,
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set. All problems
// are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMemory, c.StoreDriver))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if len(c.JWTAccessSecret) < 16 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required (at least 16 characters)"))
	}
	if len(c.JWTRefreshSecret) < 16 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required (at least 16 characters)"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// GitHubEnabled reports whether the GitHub OAuth routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, value)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
