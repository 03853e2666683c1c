// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSupervisorLogPath receives supervised output unless overridden.
const DefaultSupervisorLogPath = "supervise.log"

// EnvPrefix is prepended to environment overrides, e.g. HARVESTER_CRAWL_ID_SKIP.
const EnvPrefix = "HARVESTER"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl" yaml:"crawl"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CrawlConfig governs the crawl loop and where it keeps its files.
type CrawlConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	IDLimit        int64         `mapstructure:"id_limit" yaml:"id_limit"`
	IDSkip         int64         `mapstructure:"id_skip" yaml:"id_skip"`
	CheckpointPath string        `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
	AuditLog       string        `mapstructure:"audit_log" yaml:"audit_log"`
	DumpDir        string        `mapstructure:"dump_dir" yaml:"dump_dir"`
	CloneDir       string        `mapstructure:"clone_dir" yaml:"clone_dir"`
	CloneLog       string        `mapstructure:"clone_log" yaml:"clone_log"`
	VCS            string        `mapstructure:"vcs" yaml:"vcs"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxWait        time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	IterationDelay time.Duration `mapstructure:"iteration_delay" yaml:"iteration_delay"`
	RateBatch      int           `mapstructure:"rate_batch" yaml:"rate_batch"`
	RateWindow     time.Duration `mapstructure:"rate_window" yaml:"rate_window"`
	RateMinSleep   time.Duration `mapstructure:"rate_min_sleep" yaml:"rate_min_sleep"`
}

// HTTPConfig configures the listing client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent" yaml:"user_agent"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// SupervisorConfig controls the keep-alive loop of the supervise command.
type SupervisorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Cooldown     time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	LogPath      string        `mapstructure:"log_path" yaml:"log_path"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
	// File, when set, receives a copy of the log.
	File string `mapstructure:"file" yaml:"file"`
}

// New returns a Viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadViper(New(), path)
}

// LoadViper reads path, if set, into v and decodes the result. Flags
// bound to v before the call take precedence over file values.
func LoadViper(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("crawl.base_url", "https://api.github.com/repositories")
	v.SetDefault("crawl.id_limit", 10000000)
	v.SetDefault("crawl.id_skip", 1000)
	v.SetDefault("crawl.checkpoint_path", "gitdwnld.id")
	v.SetDefault("crawl.audit_log", "gitdwnld.log")
	v.SetDefault("crawl.dump_dir", "logs")
	v.SetDefault("crawl.clone_dir", ".")
	v.SetDefault("crawl.clone_log", "")
	v.SetDefault("crawl.vcs", "git")
	v.SetDefault("crawl.poll_interval", "5s")
	v.SetDefault("crawl.max_wait", "1h")
	v.SetDefault("crawl.iteration_delay", "10s")
	v.SetDefault("crawl.rate_batch", 58)
	v.SetDefault("crawl.rate_window", "1h")
	v.SetDefault("crawl.rate_min_sleep", "30m")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "repo-harvester/1.0")
	v.SetDefault("http.requests_per_minute", 0)
	v.SetDefault("supervisor.poll_interval", "5s")
	v.SetDefault("supervisor.cooldown", "1h")
	v.SetDefault("supervisor.log_path", DefaultSupervisorLogPath)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.BaseURL == "" {
		return fmt.Errorf("crawl.base_url must be set")
	}
	if c.Crawl.IDSkip <= 0 {
		return fmt.Errorf("crawl.id_skip must be > 0")
	}
	if c.Crawl.IDLimit < 0 {
		return fmt.Errorf("crawl.id_limit must be >= 0")
	}
	if c.Crawl.CheckpointPath == "" {
		return fmt.Errorf("crawl.checkpoint_path must be set")
	}
	switch strings.ToLower(c.Crawl.VCS) {
	case "git", "hg":
	default:
		return fmt.Errorf("crawl.vcs must be git or hg, got %q", c.Crawl.VCS)
	}
	if c.Crawl.PollInterval <= 0 {
		return fmt.Errorf("crawl.poll_interval must be > 0")
	}
	if c.Crawl.IterationDelay < 0 || c.Crawl.MaxWait < 0 {
		return fmt.Errorf("crawl.iteration_delay and crawl.max_wait must be >= 0")
	}
	if c.Crawl.RateBatch <= 0 {
		return fmt.Errorf("crawl.rate_batch must be > 0")
	}
	if c.Crawl.RateWindow <= 0 || c.Crawl.RateMinSleep < 0 {
		return fmt.Errorf("crawl.rate_window must be > 0 and crawl.rate_min_sleep >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerMinute < 0 {
		return fmt.Errorf("http.requests_per_minute must be >= 0")
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("supervisor.poll_interval must be > 0")
	}
	if c.Supervisor.Cooldown < 0 {
		return fmt.Errorf("supervisor.cooldown must be >= 0")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
