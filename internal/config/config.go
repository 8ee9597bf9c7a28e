// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// Routing provider. An empty RoutingAPIKey is allowed at startup; distance
	// lookups then fail with a configuration error.
	RoutingAPIKey      string
	RoutingBaseURL     string
	RoutingProfile     string
	RoutingMinInterval time.Duration
	RoutingMaxAttempts int
	RoutingBackoff     time.Duration

	// MaxUploadBytes caps the request body of an upload. Defaults to 20 MiB.
	MaxUploadBytes int64

	// TotalAmountCell is the cell holding an invoice's declared total. Defaults to "G2".
	TotalAmountCell string

	// BackfillSchedule is a cron spec for the periodic route backfill.
	// Empty disables the schedule; uploads still trigger backfills.
	BackfillSchedule string

	// PendingUploadTTL is how long a conflicting upload waits for a decision.
	PendingUploadTTL time.Duration
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first variable that cannot be parsed.
func Load() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RoutingAPIKey:    os.Getenv("ROUTING_API_KEY"),
		RoutingBaseURL:   getEnv("ROUTING_BASE_URL", "https://api.openrouteservice.org"),
		RoutingProfile:   getEnv("ROUTING_PROFILE", "driving-car"),
		TotalAmountCell:  strings.ToUpper(getEnv("TOTAL_AMOUNT_CELL", "G2")),
		BackfillSchedule: getEnvAllowEmpty("BACKFILL_SCHEDULE", "@every 1h"),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.RoutingMinInterval, err = getDuration("ROUTING_MIN_INTERVAL", 1500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RoutingBackoff, err = getDuration("ROUTING_BACKOFF", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PendingUploadTTL, err = getDuration("PENDING_UPLOAD_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	attempts, err := getInt("ROUTING_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	if attempts < 1 {
		return Config{}, fmt.Errorf("ROUTING_MAX_ATTEMPTS must be at least 1, got %d", attempts)
	}
	cfg.RoutingMaxAttempts = attempts
	maxBytes, err := getInt("MAX_UPLOAD_BYTES", 20<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxBytes)

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty is like getEnv but an explicitly empty variable wins over
// the fallback.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
