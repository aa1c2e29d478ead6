package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix namespaces every server variable. The bare name is still read
// when the prefixed one is unset.
const envPrefix = "FOCUSFLOW_"

const defaultJWTSecret = "change-this-secret"

// Config holds the session service settings, read from the environment.
type Config struct {
	Host              string
	Port              string
	DBPath            string
	JWTSecret         string
	TokenTTL          time.Duration
	CORSOrigins       []string
	MigrationsDir     string
	LogLevel          string
	LogFormat         string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func Load() Config {
	return Config{
		Host:              getEnv("HOST", ""),
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/focusflow.db"),
		JWTSecret:         getEnv("JWT_SECRET", defaultJWTSecret),
		TokenTTL:          time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		ReadHeaderTimeout: getEnvDuration("READ_HEADER_TIMEOUT", 5*time.Second),
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// InsecureSecret reports whether tokens are signed with the built-in secret.
func (c Config) InsecureSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	} else if port, err := strconv.Atoi(c.Port); err != nil || port < 0 || port > 65535 {
		errs = append(errs, errors.New("PORT must be a number between 0 and 65535"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_HOURS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	for _, name := range []string{envPrefix + key, key} {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("750ms", "2m") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
