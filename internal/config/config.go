// Package config loads and validates environment-based configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Route cache backends.
const (
	RouteCachePostgres = "postgres"
	RouteCacheRedis    = "redis"
	RouteCacheNone     = "none"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	DBDSN        string
	GoogleAPIKey string // Empty selects the straight-line router.
	Port         int

	// Geocoding.
	NominatimURL       string
	NominatimUserAgent string
	GeocoderRPS        float64

	// Route caching.
	RouteCache string
	RedisAddr  string

	// ImageDir holds the pictures of the demo catalogue.
	ImageDir string

	// SessionTTL is how long an idle map session is kept.
	SessionTTL time.Duration

	LogLevel    string
	LogFormat   string
	CORSOrigins []string // Empty allows any origin.
}

// Load reads a .env file when present, then reads and validates the
// environment. Returns a ConfigError for any missing or invalid value.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		DBDSN:              os.Getenv("DB_DSN"),
		GoogleAPIKey:       os.Getenv("GOOGLE_API_KEY"),
		NominatimURL:       getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: getEnv("NOMINATIM_USER_AGENT", "placemap/1.0"),
		RouteCache:         strings.ToLower(getEnv("ROUTE_CACHE", RouteCachePostgres)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		ImageDir:           getEnv("IMAGE_DIR", "./assets/places"),
		SessionTTL:         parseDurationEnv("SESSION_TTL", 30*time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		CORSOrigins:        splitCSV(os.Getenv("CORS_ORIGINS")),
	}

	if cfg.DBDSN == "" {
		return nil, &ConfigError{Field: "DB_DSN", Message: "required but not set"}
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		cfg.Port = 8080
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, &ConfigError{Field: "PORT", Message: "must be a valid integer"}
		}
		cfg.Port = port
	}

	rps := os.Getenv("GEOCODER_RPS")
	if rps == "" {
		cfg.GeocoderRPS = 1
	} else {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return nil, &ConfigError{Field: "GEOCODER_RPS", Message: "must be a number"}
		}
		cfg.GeocoderRPS = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks required fields on an already-constructed Config.
func (c *Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, &ConfigError{Field: "DB_DSN", Message: "cannot be empty"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"})
	}
	if c.GeocoderRPS < 0 {
		errs = append(errs, &ConfigError{Field: "GEOCODER_RPS", Message: "cannot be negative"})
	}
	switch c.RouteCache {
	case RouteCachePostgres, RouteCacheNone:
	case RouteCacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, &ConfigError{Field: "REDIS_ADDR", Message: "required when ROUTE_CACHE=redis"})
		}
	default:
		errs = append(errs, &ConfigError{Field: "ROUTE_CACHE", Message: "must be postgres, redis or none"})
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, &ConfigError{Field: "SESSION_TTL", Message: "must be positive"})
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// parseDurationEnv reads a duration from an environment variable.
// Falls back to defaultVal if the variable is unset or unparseable.
func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
