// Package config loads and validates configuration at startup.
// Values come from defaults, an optional YAML file and environment
// variables, in increasing order of precedence. Invalid configuration
// fails fast.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all runtime configuration for the watch service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port          string `mapstructure:"port"`
	GRPCPort      string `mapstructure:"grpc_port"`
	TriggerSecret string `mapstructure:"trigger_secret"`
}

type StoreConfig struct {
	Type        string `mapstructure:"type"`
	DatabaseURL string `mapstructure:"database_url"`
	// AutoMigrate applies pending migrations when the service starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig is optional; without a URL notifications and batch status
// stay in process.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type CatalogConfig struct {
	URL                 string  `mapstructure:"url"`
	APIKey              string  `mapstructure:"api_key"`
	File                string  `mapstructure:"file"`
	RateLimit           float64 `mapstructure:"rate_limit"`
	Burst               int     `mapstructure:"burst"`
	PageSize            int     `mapstructure:"page_size"`
	MaxEnumerationPages int     `mapstructure:"max_enumeration_pages"`
}

// ScheduleConfig holds cron specs; an empty spec disables the job.
type ScheduleConfig struct {
	RunAll    string `mapstructure:"run_all"`
	Sweep     string `mapstructure:"sweep"`
	Retention string `mapstructure:"retention"`
}

type WatchConfig struct {
	GuestTTL         time.Duration `mapstructure:"guest_ttl"`
	MatchRetention   time.Duration `mapstructure:"match_retention"`
	MaxCommitRetries int           `mapstructure:"max_commit_retries"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.port":                   "WATCH_PORT",
	"server.grpc_port":              "WATCH_GRPC_PORT",
	"server.trigger_secret":         "WATCH_TRIGGER_SECRET",
	"store.type":                    "WATCH_STORE",
	"store.database_url":            "DATABASE_URL",
	"store.auto_migrate":            "WATCH_AUTO_MIGRATE",
	"redis.url":                     "REDIS_URL",
	"catalog.url":                   "CATALOG_URL",
	"catalog.api_key":               "CATALOG_API_KEY",
	"catalog.file":                  "CATALOG_FILE",
	"catalog.rate_limit":            "CATALOG_RATE_LIMIT",
	"catalog.burst":                 "CATALOG_BURST",
	"catalog.page_size":             "CATALOG_PAGE_SIZE",
	"catalog.max_enumeration_pages": "CATALOG_MAX_ENUMERATION_PAGES",
	"schedule.run_all":              "WATCH_RUN_SCHEDULE",
	"schedule.sweep":                "WATCH_SWEEP_SCHEDULE",
	"schedule.retention":            "WATCH_RETENTION_SCHEDULE",
	"watch.guest_ttl":               "WATCH_GUEST_TTL",
	"watch.match_retention":         "WATCH_MATCH_RETENTION",
	"watch.max_commit_retries":      "WATCH_MAX_COMMIT_RETRIES",
	"log.level":                     "LOG_LEVEL",
	"log.development":               "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8083")
	v.SetDefault("server.grpc_port", "50053")
	v.SetDefault("store.type", StoreMemory)
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("catalog.rate_limit", 10.0)
	v.SetDefault("catalog.burst", 5)
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.max_enumeration_pages", 10)
	v.SetDefault("schedule.run_all", "@daily")
	v.SetDefault("schedule.sweep", "@every 1h")
	v.SetDefault("schedule.retention", "@daily")
	v.SetDefault("watch.guest_ttl", "2160h") // 90 days
	v.SetDefault("watch.match_retention", "0s")
	v.SetDefault("watch.max_commit_retries", 3)
	v.SetDefault("log.level", "info")
}

// Load reads configuration. path names an explicit YAML file; when empty,
// watch-service.yaml is looked up in . and ./config and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("watch-service")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	switch c.Store.Type {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when WATCH_STORE is postgres")
		}
	default:
		return fmt.Errorf("store type must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Type)
	}

	if c.Catalog.URL == "" && c.Catalog.File == "" {
		return errors.New("one of CATALOG_URL or CATALOG_FILE is required")
	}
	if c.Catalog.URL != "" && c.Catalog.File != "" {
		return errors.New("CATALOG_URL and CATALOG_FILE are mutually exclusive")
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog page size must be positive, got %d", c.Catalog.PageSize)
	}
	if c.Catalog.RateLimit < 0 {
		return fmt.Errorf("catalog rate limit must not be negative, got %v", c.Catalog.RateLimit)
	}
	if c.Watch.GuestTTL <= 0 {
		return fmt.Errorf("guest TTL must be positive, got %s", c.Watch.GuestTTL)
	}
	if c.Watch.MatchRetention < 0 {
		return fmt.Errorf("match retention must not be negative, got %s", c.Watch.MatchRetention)
	}
	if c.Server.Port == "" {
		return errors.New("WATCH_PORT must not be empty")
	}
	return nil
}
