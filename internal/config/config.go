// Package config loads and validates all runtime configuration for the
// adaptive mock platform.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// WSPort is the TCP port the dashboard websocket feed listens on.
	// Served from a separate net/http listener since gorilla/websocket
	// upgrades require the standard library's http.ResponseWriter/Request,
	// not fasthttp's. Default: Port+1.
	WSPort int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// TargetURL is the upstream base URL proxied requests are forwarded to.
	// May be empty at startup; it can also be set later via the control
	// plane. Must start with http:// or https:// when non-empty.
	TargetURL string

	// PlatformMode is the initial operating mode: "proxy" or "mock".
	PlatformMode string

	// ActiveChaosProfile is the initial chaos profile: one of normal,
	// friday_afternoon, db_bottleneck, zombie_api.
	ActiveChaosProfile string

	// LearningEnabled toggles whether the learning worker absorbs new
	// traffic observations at startup.
	LearningEnabled bool

	// LearningBufferSize is how many observations accumulate before the
	// learning worker drains and processes them.
	LearningBufferSize int

	// DetectorPersistPath is where the adaptive detector's learned
	// Welford baselines are atomically persisted between restarts.
	DetectorPersistPath string

	// SchemaPersistPath is where the learned request/response schema
	// registry is atomically persisted between restarts.
	SchemaPersistPath string

	// SQLitePath is the file path for the relational store (endpoints,
	// behaviors, chaos configs, drift alerts).
	SQLitePath string

	// ClickHouseDSN is the connection string for the append-only health
	// sample sink. Empty disables the sink entirely.
	ClickHouseDSN string

	// Redis holds the connection URL for the control-plane rate limiter.
	Redis RedisConfig

	// AdminRateLimit controls control-plane request-rate limiting.
	AdminRateLimit RateLimitConfig

	// Forwarder controls the upstream forwarder's HTTP client.
	Forwarder ForwarderConfig

	// CORSOrigins is the list of allowed CORS origins. Use ["*"] to
	// allow any origin (default).
	CORSOrigins []string

	// AppBaseURL is used to construct absolute URLs (e.g. websocket
	// upgrade links shown to dashboard clients).
	AppBaseURL string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// RateLimitConfig controls request-rate limiting.
type RateLimitConfig struct {
	// RPMLimit is the maximum control-plane requests per minute allowed
	// globally. 0 disables rate limiting.
	RPMLimit int
}

// ForwarderConfig controls the upstream forwarder's HTTP client.
type ForwarderConfig struct {
	// Timeout is the fixed per-request upstream timeout.
	Timeout time.Duration
}

// Load reads configuration from environment variables and (optionally)
// from config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PLATFORM_MODE", "proxy")
	v.SetDefault("ACTIVE_CHAOS_PROFILE", "normal")
	v.SetDefault("LEARNING_ENABLED", true)
	v.SetDefault("LEARNING_BUFFER_SIZE", 1)
	v.SetDefault("DETECTOR_PERSIST_PATH", "data/detector_stats.json")
	v.SetDefault("SCHEMA_PERSIST_PATH", "data/schema_registry.json")
	v.SetDefault("SQLITE_PATH", "data/platform.db")
	v.SetDefault("ADMIN_RPM_LIMIT", 0)
	v.SetDefault("FORWARDER_TIMEOUT", "60s")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("WS_PORT", v.GetInt("PORT")+1)

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		WSPort:   v.GetInt("WS_PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		TargetURL:          v.GetString("TARGET_URL"),
		PlatformMode:       strings.ToLower(v.GetString("PLATFORM_MODE")),
		ActiveChaosProfile: strings.ToLower(v.GetString("ACTIVE_CHAOS_PROFILE")),
		LearningEnabled:    v.GetBool("LEARNING_ENABLED"),
		LearningBufferSize: v.GetInt("LEARNING_BUFFER_SIZE"),

		DetectorPersistPath: v.GetString("DETECTOR_PERSIST_PATH"),
		SchemaPersistPath:   v.GetString("SCHEMA_PERSIST_PATH"),
		SQLitePath:          v.GetString("SQLITE_PATH"),
		ClickHouseDSN:       v.GetString("CLICKHOUSE_DSN"),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		AdminRateLimit: RateLimitConfig{RPMLimit: v.GetInt("ADMIN_RPM_LIMIT")},

		Forwarder: ForwarderConfig{Timeout: v.GetDuration("FORWARDER_TIMEOUT")},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
		AppBaseURL:  v.GetString("APP_BASE_URL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if c.TargetURL != "" {
		if !strings.HasPrefix(c.TargetURL, "http://") && !strings.HasPrefix(c.TargetURL, "https://") {
			return fmt.Errorf("config: TARGET_URL must start with http:// or https://, got %q", c.TargetURL)
		}
		if _, err := url.Parse(c.TargetURL); err != nil {
			return fmt.Errorf("config: TARGET_URL is not a valid URL: %w", err)
		}
	}

	switch c.PlatformMode {
	case "proxy", "mock":
	default:
		return fmt.Errorf("config: invalid PLATFORM_MODE %q; must be one of: proxy, mock", c.PlatformMode)
	}

	switch c.ActiveChaosProfile {
	case "normal", "friday_afternoon", "db_bottleneck", "zombie_api":
	default:
		return fmt.Errorf(
			"config: invalid ACTIVE_CHAOS_PROFILE %q; must be one of: normal, friday_afternoon, db_bottleneck, zombie_api",
			c.ActiveChaosProfile)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.LearningBufferSize < 1 {
		return fmt.Errorf("config: LEARNING_BUFFER_SIZE must be ≥ 1, got %d", c.LearningBufferSize)
	}
	if c.Forwarder.Timeout <= 0 {
		return fmt.Errorf("config: FORWARDER_TIMEOUT must be a positive duration")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("config: SQLITE_PATH must not be empty")
	}
	if c.WSPort == c.Port {
		return fmt.Errorf("config: WS_PORT must differ from PORT, both are %d", c.Port)
	}

	return nil
}

// RedactedRedisURL returns the Redis URL with any embedded credentials
// replaced by "***", safe to include in logs.
func (c *Config) RedactedRedisURL() string {
	return redactURL(c.Redis.URL)
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
