package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if got := cfg.PollInterval(); got != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %v", got)
	}
	if cfg.Crawl.MaxPages != 50 {
		t.Fatalf("expected max pages 50, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.RootTimeout() != 30*time.Second || cfg.PageTimeout() != 20*time.Second {
		t.Fatalf("unexpected crawl timeouts %v / %v", cfg.RootTimeout(), cfg.PageTimeout())
	}
	if cfg.Renderer.Mode != RendererHeadless {
		t.Fatalf("expected headless renderer, got %q", cfg.Renderer.Mode)
	}
	if cfg.Summarizer.Provider != SummarizerNone || cfg.Summarizer.FallbackChars != 500 {
		t.Fatalf("unexpected summarizer defaults: %+v", cfg.Summarizer)
	}
	if cfg.Database.DSN != "" || !cfg.Database.AutoMigrate {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
poller:
  interval_seconds: 2
crawl:
  max_pages: 10
  root_timeout_seconds: 45
  page_timeout_seconds: 15
  user_agent: custom-agent
renderer:
  mode: auto
  max_parallel: 2
  promotion_threshold: 4096
summarizer:
  provider: gemini
  api_key: key
  requests_per_second: 0.5
database:
  dsn: postgres://localhost/ingest
  max_conns: 8
snapshots:
  backend: gcs
  bucket: snaps
  prefix: html
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %v", cfg.PollInterval())
	}
	if cfg.Crawl.MaxPages != 10 || cfg.Crawl.UserAgent != "custom-agent" {
		t.Fatalf("expected crawl overrides: %+v", cfg.Crawl)
	}
	if cfg.Renderer.Mode != RendererAuto || cfg.Renderer.PromotionThreshold != 4096 {
		t.Fatalf("expected renderer overrides: %+v", cfg.Renderer)
	}
	if cfg.Summarizer.RequestsPerSecond != 0.5 || cfg.Summarizer.Model != "gemini-2.0-flash" {
		t.Fatalf("expected summarizer overrides with default model: %+v", cfg.Summarizer)
	}
	if cfg.Database.MaxConns != 8 {
		t.Fatalf("expected max conns 8, got %d", cfg.Database.MaxConns)
	}
	if cfg.Snapshots.Bucket != "snaps" || cfg.Snapshots.Prefix != "html" {
		t.Fatalf("expected snapshot overrides: %+v", cfg.Snapshots)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INGEST_SERVER_PORT", "7070")
	t.Setenv("INGEST_CRAWL_MAX_PAGES", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Crawl.MaxPages != 3 {
		t.Fatalf("expected env overrides, got port=%d max_pages=%d", cfg.Server.Port, cfg.Crawl.MaxPages)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Poller:     PollerConfig{IntervalSeconds: 5},
		Crawl:      CrawlConfig{MaxPages: 50, RootTimeoutSeconds: 30, PageTimeoutSeconds: 20},
		Renderer:   RendererConfig{Mode: RendererHeadless, MaxParallel: 1},
		Summarizer: SummarizerConfig{Provider: SummarizerNone},
		Snapshots:  SnapshotsConfig{Backend: SnapshotsNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid interval", mutate: func(c *Config) { c.Poller.IntervalSeconds = 0 }, want: "poller.interval_seconds"},
		{name: "invalid max pages", mutate: func(c *Config) { c.Crawl.MaxPages = 0 }, want: "crawl.max_pages"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Crawl.PageTimeoutSeconds = 0 }, want: "crawl timeouts"},
		{name: "unknown renderer", mutate: func(c *Config) { c.Renderer.Mode = "webkit" }, want: "renderer.mode"},
		{name: "headless missing max parallel", mutate: func(c *Config) { c.Renderer.MaxParallel = 0 }, want: "renderer.max_parallel"},
		{name: "gemini missing key", mutate: func(c *Config) { c.Summarizer.Provider = SummarizerGemini }, want: "summarizer.api_key"},
		{name: "unknown provider", mutate: func(c *Config) { c.Summarizer.Provider = "openai" }, want: "summarizer.provider"},
		{name: "gcs missing bucket", mutate: func(c *Config) { c.Snapshots.Backend = SnapshotsGCS }, want: "snapshots.bucket"},
		{name: "local missing dir", mutate: func(c *Config) { c.Snapshots.Backend = SnapshotsLocal }, want: "snapshots.dir"},
		{name: "unknown backend", mutate: func(c *Config) { c.Snapshots.Backend = "s3" }, want: "snapshots.backend"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
