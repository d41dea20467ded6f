// Package config defines service configuration structures and loading hooks.
//
// Keys are flat snake_case names shared by the YAML file and the PULSE_
// environment variables, e.g. debounce_ms and PULSE_DEBOUNCE_MS.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Draft backends.
const (
	DraftBackendStore = "store"
	DraftBackendRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize caps the number of pending recompute keys remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxLeaderboardLimit caps GET /leaderboard/{period}?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// DebounceMS is the autosave quiet window.
	DebounceMS int `koanf:"debounce_ms"`
	// SaveTimeoutMS bounds a single draft save.
	SaveTimeoutMS int `koanf:"save_timeout_ms"`
	// SessionIdleTTLMS closes editing sessions untouched for this long.
	SessionIdleTTLMS int `koanf:"session_idle_ttl_ms"`

	// StorageDriver selects memory, sqlite or postgres for all stores.
	StorageDriver string `koanf:"storage_driver"`
	// StorageDSN is the database/sql data source name.
	StorageDSN string `koanf:"storage_dsn"`

	// DraftBackend keeps drafts in the storage driver (store) or in Redis.
	DraftBackend  string `koanf:"draft_backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// ClampMin and ClampMax bound every aggregated component.
	ClampMin float64 `koanf:"clamp_min"`
	ClampMax float64 `koanf:"clamp_max"`
	// LateGraceDays is how many days after month end a report is still on time.
	LateGraceDays int `koanf:"late_grace_days"`

	// RateLimitRPS limits API requests per second; 0 disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// Weights overrides score weight tables, kind -> component -> weight.
	Weights map[string]map[string]float64 `koanf:"weights"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 100,
		DebounceMS:          2000,
		SaveTimeoutMS:       10_000,
		SessionIdleTTLMS:    int((30 * time.Minute).Milliseconds()),
		StorageDriver:       DriverMemory,
		DraftBackend:        DraftBackendStore,
		ClampMin:            0,
		ClampMax:            100,
		LateGraceDays:       5,
		RateLimitRPS:        50,
		RateLimitBurst:      100,
	}
}

// Debounce returns DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// SaveTimeout returns SaveTimeoutMS as a duration.
func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.SaveTimeoutMS) * time.Millisecond
}

// SessionIdleTTL returns SessionIdleTTLMS as a duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMS) * time.Millisecond
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel):
		return invalid("log_level %q must be debug, info, warn or error", c.LogLevel)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format %q must be text or json", c.LogFormat)
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive")
	case c.MaxLeaderboardLimit <= 0:
		return invalid("max_leaderboard_limit must be positive")
	case c.DebounceMS <= 0:
		return invalid("debounce_ms must be positive")
	case c.SaveTimeoutMS <= 0:
		return invalid("save_timeout_ms must be positive")
	case c.SessionIdleTTLMS < 0:
		return invalid("session_idle_ttl_ms must not be negative")
	case c.ClampMin >= c.ClampMax:
		return invalid("clamp_min %g must be below clamp_max %g", c.ClampMin, c.ClampMax)
	case c.LateGraceDays < 0:
		return invalid("late_grace_days must not be negative")
	case c.RateLimitRPS < 0:
		return invalid("rate_limit_rps must not be negative")
	case c.RateLimitRPS > 0 && c.RateLimitBurst <= 0:
		return invalid("rate_limit_burst must be positive when rate limiting")
	}

	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.StorageDSN == "" {
			return invalid("storage_dsn is required for %s", c.StorageDriver)
		}
	default:
		return invalid("storage_driver %q must be memory, sqlite or postgres", c.StorageDriver)
	}

	switch c.DraftBackend {
	case DraftBackendStore:
	case DraftBackendRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis draft backend")
		}
	default:
		return invalid("draft_backend %q must be store or redis", c.DraftBackend)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
