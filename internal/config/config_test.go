package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  base_url: https://example.com/repositories?per_page=1
  id_limit: 3000
  id_skip: 1000
  checkpoint_path: state/cursor.id
  audit_log: state/harvest.log
  dump_dir: state/dumps
  clone_dir: clones
  clone_log: clone.log
  vcs: hg
  poll_interval: 2s
  max_wait: 30m
  iteration_delay: 1s
  rate_batch: 10
  rate_window: 2h
  rate_min_sleep: 15m
http:
  timeout_seconds: 45
  user_agent: test-agent
  requests_per_minute: 30
supervisor:
  poll_interval: 1s
  cooldown: 10m
  log_path: keep.log
metrics:
  addr: ":9090"
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawl.IDLimit != 3000 || cfg.Crawl.IDSkip != 1000 {
		t.Fatalf("expected id overrides, got %+v", cfg.Crawl)
	}
	if cfg.Crawl.VCS != "hg" || cfg.Crawl.CloneLog != "clone.log" {
		t.Fatalf("expected clone overrides, got %+v", cfg.Crawl)
	}
	if cfg.Crawl.PollInterval != 2*time.Second || cfg.Crawl.MaxWait != 30*time.Minute {
		t.Fatalf("expected duration overrides, got %+v", cfg.Crawl)
	}
	if cfg.Crawl.RateBatch != 10 || cfg.Crawl.RateWindow != 2*time.Hour || cfg.Crawl.RateMinSleep != 15*time.Minute {
		t.Fatalf("expected rate overrides, got %+v", cfg.Crawl)
	}
	if cfg.HTTP.UserAgent != "test-agent" || cfg.HTTP.RequestsPerMinute != 30 {
		t.Fatalf("expected http overrides, got %+v", cfg.HTTP)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
	if cfg.Supervisor.Cooldown != 10*time.Minute || cfg.Supervisor.LogPath != "keep.log" {
		t.Fatalf("expected supervisor overrides, got %+v", cfg.Supervisor)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Logging.Development {
		t.Fatalf("expected metrics/logging overrides")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawl.BaseURL != "https://api.github.com/repositories" {
		t.Fatalf("unexpected base url %q", cfg.Crawl.BaseURL)
	}
	if cfg.Crawl.IDLimit != 10000000 || cfg.Crawl.IDSkip != 1000 {
		t.Fatalf("unexpected id defaults %+v", cfg.Crawl)
	}
	if cfg.Crawl.CheckpointPath != "gitdwnld.id" || cfg.Crawl.AuditLog != "gitdwnld.log" || cfg.Crawl.DumpDir != "logs" {
		t.Fatalf("unexpected file defaults %+v", cfg.Crawl)
	}
	if cfg.Crawl.PollInterval != 5*time.Second || cfg.Crawl.MaxWait != time.Hour || cfg.Crawl.IterationDelay != 10*time.Second {
		t.Fatalf("unexpected timing defaults %+v", cfg.Crawl)
	}
	if cfg.Crawl.RateBatch != 58 || cfg.Crawl.RateWindow != time.Hour || cfg.Crawl.RateMinSleep != 30*time.Minute {
		t.Fatalf("unexpected rate defaults %+v", cfg.Crawl)
	}
	if cfg.Supervisor.PollInterval != 5*time.Second || cfg.Supervisor.Cooldown != time.Hour {
		t.Fatalf("unexpected supervisor defaults %+v", cfg.Supervisor)
	}
	if cfg.Crawl.VCS != "git" || cfg.Metrics.Addr != "" || !cfg.Logging.Development {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HARVESTER_CRAWL_ID_SKIP", "250")
	t.Setenv("HARVESTER_CRAWL_VCS", "hg")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.IDSkip != 250 || cfg.Crawl.VCS != "hg" {
		t.Fatalf("expected env overrides, got %+v", cfg.Crawl)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero skip", func(c *Config) { c.Crawl.IDSkip = 0 }, "crawl.id_skip"},
		{"empty checkpoint", func(c *Config) { c.Crawl.CheckpointPath = "" }, "crawl.checkpoint_path"},
		{"bad vcs", func(c *Config) { c.Crawl.VCS = "svn" }, "crawl.vcs"},
		{"zero poll", func(c *Config) { c.Crawl.PollInterval = 0 }, "crawl.poll_interval"},
		{"zero batch", func(c *Config) { c.Crawl.RateBatch = 0 }, "crawl.rate_batch"},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative pacing", func(c *Config) { c.HTTP.RequestsPerMinute = -1 }, "http.requests_per_minute"},
		{"zero supervisor poll", func(c *Config) { c.Supervisor.PollInterval = 0 }, "supervisor.poll_interval"},
		{"empty base url", func(c *Config) { c.Crawl.BaseURL = "" }, "crawl.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
