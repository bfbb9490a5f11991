package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

type Config struct {
	Port        int    `yaml:"port"`
	StoreDriver string `yaml:"store_driver"`
	DBDSN       string `yaml:"db_dsn"`
	DBMaxConns  int    `yaml:"db_max_conns"`

	CacheDriver   string        `yaml:"cache_driver"`
	RedisURL      string        `yaml:"redis_url"`
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"`

	ClickQueueSize       int           `yaml:"click_queue_size"`
	ClickWorkers         int           `yaml:"click_workers"`
	TelemetryTimeout     time.Duration `yaml:"telemetry_timeout"`
	TelemetryMaxAttempts int           `yaml:"telemetry_max_attempts"`
	TelemetryBackoff     time.Duration `yaml:"telemetry_backoff"`

	PasswordRateRPS   float64 `yaml:"password_rate_rps"`
	PasswordRateBurst int     `yaml:"password_rate_burst"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Port:                 8080,
		StoreDriver:          DriverSQLite,
		DBDSN:                "file:shorty.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate",
		DBMaxConns:           25,
		CacheDriver:          DriverMemory,
		StatsCacheTTL:        5 * time.Minute,
		ClickQueueSize:       10000,
		ClickWorkers:         4,
		TelemetryTimeout:     5 * time.Second,
		TelemetryMaxAttempts: 3,
		TelemetryBackoff:     100 * time.Millisecond,
		PasswordRateRPS:      1,
		PasswordRateBurst:    5,
		ShutdownTimeout:      10 * time.Second,
		LogLevel:             "info",
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load builds the configuration from defaults, then the YAML file at path
// (if any), then the environment. A .env file in the working directory is
// loaded first and never overrides variables already set.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := Defaults()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes the YAML file at path over cfg. Keys absent from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func ApplyEnv(cfg *Config) {
	cfg.Port = getint("PORT", cfg.Port)
	cfg.StoreDriver = getenv("STORE_DRIVER", cfg.StoreDriver)
	cfg.DBDSN = getenv("DB_DSN", cfg.DBDSN)
	cfg.DBMaxConns = getint("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.CacheDriver = getenv("CACHE_DRIVER", cfg.CacheDriver)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.StatsCacheTTL = getdur("STATS_CACHE_TTL", cfg.StatsCacheTTL)
	cfg.ClickQueueSize = getint("CLICK_QUEUE_SIZE", cfg.ClickQueueSize)
	cfg.ClickWorkers = getint("CLICK_WORKERS", cfg.ClickWorkers)
	cfg.TelemetryTimeout = getdur("TELEMETRY_TIMEOUT", cfg.TelemetryTimeout)
	cfg.TelemetryMaxAttempts = getint("TELEMETRY_MAX_ATTEMPTS", cfg.TelemetryMaxAttempts)
	cfg.TelemetryBackoff = getdur("TELEMETRY_BACKOFF", cfg.TelemetryBackoff)
	cfg.PasswordRateRPS = getfloat("PASSWORD_RATE_RPS", cfg.PasswordRateRPS)
	cfg.PasswordRateBurst = getint("PASSWORD_RATE_BURST", cfg.PasswordRateBurst)
	cfg.ShutdownTimeout = getdur("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.StoreDriver != DriverMemory && c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	switch c.CacheDriver {
	case DriverMemory:
	case DriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.CacheDriver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.StatsCacheTTL <= 0 {
		errs = append(errs, errors.New("stats cache ttl must be positive"))
	}
	if c.PasswordRateRPS <= 0 || c.PasswordRateBurst <= 0 {
		errs = append(errs, errors.New("password rate limit must be positive"))
	}
	return errors.Join(errs...)
}
