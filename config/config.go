// Package config loads service configuration from a .env file and the
// environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	Environment string
	Port        int

	DatabaseDriver string
	DatabaseDSN    string

	RemoteEvaluatorURL     string
	RemoteEvaluatorTimeout time.Duration

	LogLevel  string
	LogFormat string

	PayrollWorkers           int
	PayrollSchedulerEnabled  bool
	PayrollSchedulerInterval time.Duration

	CORSAllowedOrigins []string
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Load loads configuration from environment variables and .env file.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:                  getenv("APP_SERVICE", "commission-engine"),
		Environment:              getenv("APP_ENV", "development"),
		Port:                     getenvInt("PORT", 8080),
		DatabaseDriver:           normalizeDriver(getenv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseDSN:              getenv("DATABASE_DSN", "commission.db"),
		RemoteEvaluatorURL:       strings.TrimRight(strings.TrimSpace(getenv("REMOTE_EVALUATOR_URL", "")), "/"),
		RemoteEvaluatorTimeout:   getenvDuration("REMOTE_EVALUATOR_TIMEOUT", 3*time.Second),
		LogLevel:                 getenv("LOG_LEVEL", "info"),
		LogFormat:                getenv("LOG_FORMAT", "json"),
		PayrollWorkers:           getenvInt("PAYROLL_WORKERS", 4),
		PayrollSchedulerEnabled:  getenvBool("PAYROLL_SCHEDULER_ENABLED", false),
		PayrollSchedulerInterval: getenvDuration("PAYROLL_SCHEDULER_INTERVAL", time.Hour),
		CORSAllowedOrigins:       splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pq":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
