// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Renderer modes.
const (
	RendererHeadless = "headless"
	RendererStatic   = "static"
	RendererAuto     = "auto"
)

// Summarizer providers.
const (
	SummarizerGemini = "gemini"
	SummarizerNone   = "none"
)

// Snapshot backends.
const (
	SnapshotsNone   = "none"
	SnapshotsMemory = "memory"
	SnapshotsLocal  = "local"
	SnapshotsGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PollerConfig controls the pending-crawl loop.
type PollerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// CrawlConfig governs a single crawl run.
type CrawlConfig struct {
	MaxPages           int    `mapstructure:"max_pages"`
	RootTimeoutSeconds int    `mapstructure:"root_timeout_seconds"`
	PageTimeoutSeconds int    `mapstructure:"page_timeout_seconds"`
	UserAgent          string `mapstructure:"user_agent"`
}

// RendererConfig configures page rendering.
type RendererConfig struct {
	Mode               string `mapstructure:"mode"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	ViewportWidth      int    `mapstructure:"viewport_width"`
	ViewportHeight     int    `mapstructure:"viewport_height"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// SummarizerConfig selects and tunes the section summarizer.
type SummarizerConfig struct {
	Provider          string  `mapstructure:"provider"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	MaxInputChars     int     `mapstructure:"max_input_chars"`
	FallbackChars     int     `mapstructure:"fallback_chars"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// SnapshotsConfig sets where rendered HTML snapshots go.
type SnapshotsConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// TracingConfig toggles OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval_seconds", 5)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.root_timeout_seconds", 30)
	v.SetDefault("crawl.page_timeout_seconds", 20)
	v.SetDefault("crawl.user_agent", "site-ingest-bot/1.0")
	v.SetDefault("renderer.mode", RendererHeadless)
	v.SetDefault("renderer.max_parallel", 1)
	v.SetDefault("renderer.viewport_width", 1280)
	v.SetDefault("renderer.viewport_height", 720)
	v.SetDefault("renderer.promotion_threshold", 2048)
	v.SetDefault("summarizer.provider", SummarizerNone)
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.model", "gemini-2.0-flash")
	v.SetDefault("summarizer.max_input_chars", 3000)
	v.SetDefault("summarizer.fallback_chars", 500)
	v.SetDefault("summarizer.requests_per_second", 2)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("snapshots.backend", SnapshotsNone)
	v.SetDefault("snapshots.bucket", "")
	v.SetDefault("snapshots.dir", "")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "site-ingest")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.RootTimeoutSeconds <= 0 || c.Crawl.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("crawl timeouts must be > 0")
	}
	switch c.Renderer.Mode {
	case RendererHeadless, RendererStatic, RendererAuto:
	default:
		return fmt.Errorf("renderer.mode %q must be one of headless, static, auto", c.Renderer.Mode)
	}
	if c.Renderer.Mode != RendererStatic && c.Renderer.MaxParallel <= 0 {
		return fmt.Errorf("renderer.max_parallel must be > 0 when headless rendering is used")
	}
	switch c.Summarizer.Provider {
	case SummarizerNone:
	case SummarizerGemini:
		if c.Summarizer.APIKey == "" {
			return fmt.Errorf("summarizer.api_key must be set for the gemini provider")
		}
	default:
		return fmt.Errorf("summarizer.provider %q must be gemini or none", c.Summarizer.Provider)
	}
	switch c.Snapshots.Backend {
	case SnapshotsNone, SnapshotsMemory, "":
	case SnapshotsLocal:
		if c.Snapshots.Dir == "" {
			return fmt.Errorf("snapshots.dir must be set for the local backend")
		}
	case SnapshotsGCS:
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshots.backend %q is not supported", c.Snapshots.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// PollInterval returns the poller wake-up interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}

// RootTimeout returns the homepage navigation budget.
func (c Config) RootTimeout() time.Duration {
	return time.Duration(c.Crawl.RootTimeoutSeconds) * time.Second
}

// PageTimeout returns the sub-page navigation budget.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawl.PageTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long shutdown waits for in-flight work.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
