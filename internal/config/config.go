// Package config loads cartd settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"GoMarketplace/internal/cart"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type StorageConfig struct {
	Backend       string        `yaml:"backend"`
	Key           string        `yaml:"key"`
	SQLitePath    string        `yaml:"sqlite_path"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	BreakerEnabled  bool          `yaml:"breaker_enabled"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type Config struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"log_level"`
	DuplicatePolicy string        `yaml:"duplicate_policy"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	MetricsToken    string        `yaml:"metrics_token"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Storage         StorageConfig `yaml:"storage"`
}

func Default() Config {
	return Config{
		Addr:            "127.0.0.1:8085",
		LogLevel:        "info",
		DuplicatePolicy: cart.KeepExisting.String(),
		RateLimitPerMin: 600,
		Storage: StorageConfig{
			Backend:         BackendSQLite,
			Key:             cart.DefaultKey,
			SQLitePath:      "cart.db",
			RedisAddr:       "localhost:6379",
			BreakerEnabled:  true,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Load reads path when it is non-empty and exists, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("CART_ADDR", cfg.Addr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.DuplicatePolicy = getenv("CART_DUPLICATE_POLICY", cfg.DuplicatePolicy)
	cfg.MetricsEnabled = getenvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsToken = getenv("METRICS_TOKEN", cfg.MetricsToken)
	cfg.RateLimitPerMin = getenvInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)

	st := &cfg.Storage
	st.Backend = getenv("CART_BACKEND", st.Backend)
	st.Key = getenv("CART_STORAGE_KEY", st.Key)
	st.SQLitePath = getenv("SQLITE_PATH", st.SQLitePath)
	st.PostgresDSN = getenv("POSTGRES_DSN", st.PostgresDSN)
	st.RedisAddr = getenv("REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getenv("REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getenvInt("REDIS_DB", st.RedisDB)
	st.BreakerEnabled = getenvBool("BREAKER_ENABLED", st.BreakerEnabled)
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if _, err := cart.ParseDuplicatePolicy(c.DuplicatePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: postgres_dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("config: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.MetricsEnabled && c.MetricsToken == "" {
		return errors.New("config: metrics_token is required when metrics are enabled")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
