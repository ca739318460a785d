// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/cms-edge/internal/database"
	"github.com/Sternrassler/cms-edge/pkg/cache"
	"github.com/Sternrassler/cms-edge/pkg/quota"
	"github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Quota backends.
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete service configuration.
type Config struct {
	Port      int             `yaml:"port"`
	Log       LogConfig       `yaml:"log"`
	Database  database.Config `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Quota     QuotaConfig     `yaml:"quota"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Startup   StartupConfig   `yaml:"startup"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig points at the optional Redis server. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RateLimitConfig configures the per-IP sliding window on /api.
type RateLimitConfig struct {
	Max           int      `yaml:"max"`
	Window        Duration `yaml:"window"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// QuotaConfig configures the daily action quota.
type QuotaConfig struct {
	MaxDaily       int      `yaml:"max_daily"`
	Backend        string   `yaml:"backend"`
	RedisRetention Duration `yaml:"redis_retention"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL           CacheTTLConfig `yaml:"ttl"`
	SweepInterval Duration       `yaml:"sweep_interval"`
}

// CacheTTLConfig holds the TTL per resource namespace.
type CacheTTLConfig struct {
	BaselStandards  Duration `yaml:"basel_standards"`
	BaselChapters   Duration `yaml:"basel_chapters"`
	AngleCategories Duration `yaml:"angle_categories"`
	AnglePodcasts   Duration `yaml:"angle_podcasts"`
	Notifications   Duration `yaml:"notifications"`
}

// AuthConfig configures session token verification.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

// StartupConfig controls how long startup waits for the database and Redis.
type StartupConfig struct {
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: 8080,
		Log:  LogConfig{Level: "info"},
		Database: database.Config{
			Driver: "sqlite",
			DSN:    "cms-edge.db",
		},
		RateLimit: RateLimitConfig{
			Max:           ratelimit.DefaultMaxRequests,
			Window:        Duration(ratelimit.DefaultWindow),
			SweepInterval: Duration(time.Minute),
		},
		Quota: QuotaConfig{
			MaxDaily: quota.DefaultMaxDaily,
			Backend:  BackendSQL,
		},
		Cache: CacheConfig{
			TTL: CacheTTLConfig{
				BaselStandards:  Duration(cache.DefaultBaselStandardsTTL),
				BaselChapters:   Duration(cache.DefaultBaselChaptersTTL),
				AngleCategories: Duration(cache.DefaultAngleCategoriesTTL),
				AnglePodcasts:   Duration(cache.DefaultAnglePodcastsTTL),
				Notifications:   Duration(cache.DefaultNotificationsTTL),
			},
			SweepInterval: Duration(time.Minute),
		},
		Auth: AuthConfig{
			CookieName: "auth-token",
		},
		Startup: StartupConfig{
			RetryAttempts: 5,
			RetryBackoff:  Duration(time.Second),
		},
	}
}

// LoadEnvFile loads variables from a .env file without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Port = envInt("PORT", c.Port, &errs)
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = envBool("LOG_PRETTY", c.Log.Pretty, &errs)

	c.Database.Driver = envString("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = envString("DATABASE_URL", c.Database.DSN)
	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.RateLimit.Max = envInt("RATE_LIMIT_MAX", c.RateLimit.Max, &errs)
	c.RateLimit.Window = envDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window, &errs)
	c.RateLimit.SweepInterval = envDuration("RATE_LIMIT_SWEEP_INTERVAL", c.RateLimit.SweepInterval, &errs)

	c.Quota.MaxDaily = envInt("QUOTA_MAX_DAILY", c.Quota.MaxDaily, &errs)
	c.Quota.Backend = envString("QUOTA_BACKEND", c.Quota.Backend)
	c.Quota.RedisRetention = envDuration("QUOTA_REDIS_RETENTION", c.Quota.RedisRetention, &errs)

	c.Cache.SweepInterval = envDuration("CACHE_SWEEP_INTERVAL", c.Cache.SweepInterval, &errs)
	c.Cache.TTL.BaselStandards = envDuration("CACHE_TTL_BASEL_STANDARDS", c.Cache.TTL.BaselStandards, &errs)
	c.Cache.TTL.BaselChapters = envDuration("CACHE_TTL_BASEL_CHAPTERS", c.Cache.TTL.BaselChapters, &errs)
	c.Cache.TTL.AngleCategories = envDuration("CACHE_TTL_ANGLE_CATEGORIES", c.Cache.TTL.AngleCategories, &errs)
	c.Cache.TTL.AnglePodcasts = envDuration("CACHE_TTL_ANGLE_PODCASTS", c.Cache.TTL.AnglePodcasts, &errs)
	c.Cache.TTL.Notifications = envDuration("CACHE_TTL_NOTIFICATIONS", c.Cache.TTL.Notifications, &errs)

	c.Auth.JWTSecret = envString("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.CookieName = envString("AUTH_COOKIE_NAME", c.Auth.CookieName)

	c.Startup.RetryAttempts = envInt("STARTUP_RETRY_ATTEMPTS", c.Startup.RetryAttempts, &errs)
	c.Startup.RetryBackoff = envDuration("STARTUP_RETRY_BACKOFF", c.Startup.RetryBackoff, &errs)

	return errors.Join(errs...)
}

// Validate checks the configuration. Every returned error wraps ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		invalid("port must be in 1..65535 (got %d)", c.Port)
	}
	if _, err := c.Database.DriverName(); err != nil {
		invalid("%v", err)
	}
	if c.Database.DSN == "" {
		invalid("database.dsn is required")
	}
	if c.RateLimit.Max <= 0 {
		invalid("rate_limit.max must be > 0 (got %d)", c.RateLimit.Max)
	}
	if c.RateLimit.Window <= 0 {
		invalid("rate_limit.window must be > 0")
	}
	if c.RateLimit.SweepInterval <= 0 {
		invalid("rate_limit.sweep_interval must be > 0")
	}
	if c.Quota.MaxDaily <= 0 {
		invalid("quota.max_daily must be > 0 (got %d)", c.Quota.MaxDaily)
	}
	switch c.Quota.Backend {
	case BackendSQL:
	case BackendRedis:
		if c.Redis.URL == "" {
			invalid("quota.backend redis requires redis.url")
		}
	default:
		invalid("quota.backend must be %q or %q (got %q)", BackendSQL, BackendRedis, c.Quota.Backend)
	}
	if c.Quota.RedisRetention < 0 {
		invalid("quota.redis_retention must be >= 0")
	}
	ttls := map[string]Duration{
		"basel_standards":  c.Cache.TTL.BaselStandards,
		"basel_chapters":   c.Cache.TTL.BaselChapters,
		"angle_categories": c.Cache.TTL.AngleCategories,
		"angle_podcasts":   c.Cache.TTL.AnglePodcasts,
		"notifications":    c.Cache.TTL.Notifications,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			invalid("cache.ttl.%s must be > 0", name)
		}
	}
	if c.Cache.SweepInterval <= 0 {
		invalid("cache.sweep_interval must be > 0")
	}
	if c.Startup.RetryAttempts < 1 {
		invalid("startup.retry_attempts must be >= 1 (got %d)", c.Startup.RetryAttempts)
	}
	if c.Startup.RetryBackoff <= 0 {
		invalid("startup.retry_backoff must be > 0")
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func envString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return defaultValue
	}
	return n
}

func envBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return defaultValue
	}
	return b
}

func envDuration(key string, defaultValue Duration, errs *[]error) Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return defaultValue
	}
	return Duration(d)
}
