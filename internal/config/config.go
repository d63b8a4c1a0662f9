// Package config loads the service configuration from environment
// variables. Values are read once at construction and never re-read.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all tunables of the service
type Config struct {
	// Addr is the listen address of the HTTP server
	Addr string `env:"ADDRESS" envDefault:":8080"`

	// DatabasePath is the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"nfl-mcp.db"`

	// RedisAddr enables the payload fallback cache when set
	RedisAddr string `env:"REDIS_ADDR"`
	// CacheTTL is how long cached payloads stay servable
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"15m"`

	// UpstreamBaseURL is the base URL of the NFL data upstream
	UpstreamBaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://site.api.espn.com/apis/site/v2/sports/football/nfl"`

	// Circuit breaker tuning
	CircuitFailureThreshold int           `env:"CB_FAILURE_THRESHOLD" envDefault:"5"`
	CircuitRecoveryTimeout  time.Duration `env:"CB_RECOVERY_TIMEOUT" envDefault:"60s"`
	CircuitSuccessThreshold int           `env:"CB_SUCCESS_THRESHOLD" envDefault:"2"`

	// Retry tuning
	RetryMaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"500ms"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10s"`
	RetryBackoffBase  float64       `env:"RETRY_BACKOFF_BASE" envDefault:"2.0"`

	// Outbound HTTP timeouts
	ShortTimeout time.Duration `env:"API_TIMEOUT_SHORT" envDefault:"30s"`
	LongTimeout  time.Duration `env:"API_TIMEOUT_LONG" envDefault:"60s"`

	// MaxConcurrentFetches caps concurrent outbound calls (bulkhead)
	MaxConcurrentFetches int64 `env:"MAX_CONCURRENT_FETCHES" envDefault:"10"`

	// HealthDependencies lists external URLs probed by the health checker
	HealthDependencies []string `env:"HEALTH_DEPENDENCIES" envSeparator:","`
	// DependencyTimeout bounds each dependency probe
	DependencyTimeout time.Duration `env:"DEPENDENCY_TIMEOUT" envDefault:"5s"`

	// LogLevel is the logrus level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
