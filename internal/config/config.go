// Package config loads and validates collector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/board-collector/internal/adapter/listpage"
	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/scheduler"
)

// Backend names shared by index, lock and archive settings.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Per-source window defaults applied when a source leaves a field at zero.
const (
	DefaultLookbackMinutes     = 30
	DefaultInitialCrawlDays    = 1
	DefaultRestartCrawlMinutes = 180
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig               `mapstructure:"server"`
	Auth      AuthConfig                 `mapstructure:"auth"`
	Logging   LoggingConfig              `mapstructure:"logging"`
	BatchSize int                        `mapstructure:"batch_size"`
	Scheduler SchedulerConfig            `mapstructure:"scheduler"`
	Reconcile ReconcileConfig            `mapstructure:"reconcile"`
	Database  DatabaseConfig             `mapstructure:"database"`
	Index     IndexConfig                `mapstructure:"index"`
	Lock      LockConfig                 `mapstructure:"lock"`
	Redis     RedisConfig                `mapstructure:"redis"`
	PubSub    PubSubConfig               `mapstructure:"pubsub"`
	Archive   ArchiveConfig              `mapstructure:"archive"`
	HTTP      HTTPConfig                 `mapstructure:"http"`
	Headless  HeadlessConfig             `mapstructure:"headless"`
	Sources   []SourceConfig             `mapstructure:"sources"`
	Adapters  map[string]listpage.Config `mapstructure:"adapters"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig protects the /v1 routes with a shared API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SchedulerConfig sizes the worker pool and trigger queue.
type SchedulerConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueDepth int           `mapstructure:"queue_depth"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// Timezone evaluates cron expressions. Empty means the process zone.
	Timezone string `mapstructure:"timezone"`
}

// ReconcileConfig controls the startup index reconciliation.
type ReconcileConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	PageSize int  `mapstructure:"page_size"`
}

// DatabaseConfig points at the primary store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	RunsTable       string        `mapstructure:"runs_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// IndexConfig selects the search index backend.
type IndexConfig struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LockConfig selects the per-source lock backend.
type LockConfig struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// RedisConfig is shared by the redis index and lock backends.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PubSubConfig holds metadata for item.created notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where raw list pages are archived.
type ArchiveConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalArchiveConfig `mapstructure:"local"`
}

// LocalArchiveConfig configures the filesystem archive.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// HTTPConfig configures the static page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	HostRPS        float64 `mapstructure:"host_rps"`
	HostBurst      int     `mapstructure:"host_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// SourceConfig schedules one source.
type SourceConfig struct {
	Name                string `mapstructure:"name"`
	Cron                string `mapstructure:"cron"`
	LookbackMinutes     int    `mapstructure:"lookback_minutes"`
	InitialCrawlDays    int    `mapstructure:"initial_crawl_days"`
	RestartCrawlMinutes int    `mapstructure:"restart_crawl_minutes"`
	// Enabled defaults to true when omitted.
	Enabled *bool `mapstructure:"enabled"`
}

// IsEnabled reports whether the source should be scheduled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Policy converts the window settings, applying defaults for zero values.
func (s SourceConfig) Policy() collector.WindowPolicy {
	lookback := orDefault(s.LookbackMinutes, DefaultLookbackMinutes)
	initial := orDefault(s.InitialCrawlDays, DefaultInitialCrawlDays)
	restart := orDefault(s.RestartCrawlMinutes, DefaultRestartCrawlMinutes)
	return collector.WindowPolicy{
		Lookback:     time.Duration(lookback) * time.Minute,
		InitialCrawl: time.Duration(initial) * 24 * time.Hour,
		RestartCrawl: time.Duration(restart) * time.Minute,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Scheduled converts the source for the scheduler.
func (s SourceConfig) Scheduled() scheduler.Source {
	return scheduler.Source{
		Name:    s.Name,
		Cron:    s.Cron,
		Enabled: s.IsEnabled(),
		Policy:  s.Policy(),
	}
}

// ScheduledSources converts every configured source.
func (c Config) ScheduledSources() []scheduler.Source {
	out := make([]scheduler.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.Scheduled())
	}
	return out
}

// Location resolves the scheduler timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
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
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("batch_size", collector.DefaultBatchSize)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("scheduler.run_timeout", 10*time.Minute)
	v.SetDefault("scheduler.timezone", "")
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.page_size", collector.DefaultReconcilePageSize)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "posts")
	v.SetDefault("database.runs_table", "crawl_runs")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.migrate", true)
	v.SetDefault("index.backend", BackendMemory)
	v.SetDefault("index.key_prefix", "posts")
	v.SetDefault("lock.backend", BackendMemory)
	v.SetDefault("lock.ttl", 30*time.Minute)
	v.SetDefault("lock.key_prefix", "collector")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.local.base_dir", "data/pages")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "board-collector/0.1")
	v.SetDefault("http.host_rps", 0)
	v.SetDefault("http.host_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
}

// Validate enforces required values and reasonable limits. Every message
// names the offending key.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 {
		add("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		add("auth.api_key must be set when auth is enabled")
	}
	if c.BatchSize <= 0 {
		add("batch_size must be > 0")
	}
	if c.Scheduler.Workers <= 0 {
		add("scheduler.workers must be > 0")
	}
	if c.Scheduler.QueueDepth <= 0 {
		add("scheduler.queue_depth must be > 0")
	}
	if c.Scheduler.RunTimeout < 0 {
		add("scheduler.run_timeout must be >= 0")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Reconcile.PageSize <= 0 {
		add("reconcile.page_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		add("http.timeout_seconds must be > 0")
	}
	if c.HTTP.HostRPS < 0 {
		add("http.host_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		add("headless.max_parallel must be > 0 when headless is enabled")
	}

	switch c.Index.Backend {
	case BackendMemory, BackendRedis:
	default:
		add("index.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Index.Backend)
	}
	switch c.Lock.Backend {
	case BackendMemory, BackendRedis:
	default:
		add("lock.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Lock.Backend)
	}
	if c.Lock.Backend == BackendRedis {
		switch {
		case c.Lock.TTL <= 0:
			add("lock.ttl must be > 0 for the redis lock")
		case c.Scheduler.RunTimeout == 0:
			add("scheduler.run_timeout must be set when lock.backend is redis")
		case c.Lock.TTL <= c.Scheduler.RunTimeout:
			add("lock.ttl (%s) must exceed scheduler.run_timeout (%s)", c.Lock.TTL, c.Scheduler.RunTimeout)
		}
	}
	if (c.Index.Backend == BackendRedis || c.Lock.Backend == BackendRedis) && c.Redis.Addr == "" {
		add("redis.addr is required when a redis backend is selected")
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.Local.BaseDir == "" {
			add("archive.local.base_dir is required for the local archive")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			add("archive.bucket is required for the gcs archive")
		}
	default:
		add("archive.backend must be one of none, memory, local, gcs, got %q", c.Archive.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		add("pubsub.project_id is required when pubsub.topic_name is set")
	}

	errs = append(errs, c.validateSources()...)
	for name, a := range c.Adapters {
		if err := a.Validate("adapters." + name); err != nil {
			errs = append(errs, err)
		}
		if a.Render && !c.Headless.Enabled {
			add("adapters.%s.render requires headless.enabled", name)
		}
	}
	return errors.Join(errs...)
}

func (c Config) validateSources() []error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		key := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", key))
		} else {
			key = fmt.Sprintf("sources[%s]", s.Name)
			// Viper lower-cases map keys, so adapter names are always lower case.
			if s.Name != strings.ToLower(s.Name) {
				errs = append(errs, fmt.Errorf("%s.name must be lower case", key))
			}
			if _, dup := seen[s.Name]; dup {
				errs = append(errs, fmt.Errorf("%s.name is duplicated", key))
			}
			seen[s.Name] = struct{}{}
		}
		if s.LookbackMinutes < 0 || s.InitialCrawlDays < 0 || s.RestartCrawlMinutes < 0 {
			errs = append(errs, fmt.Errorf("%s window settings must be >= 0", key))
		}
		p := s.Policy()
		if p.RestartCrawl < p.Lookback {
			errs = append(errs, fmt.Errorf("%s.restart_crawl_minutes (%d) must be >= lookback_minutes (%d)",
				key, int(p.RestartCrawl.Minutes()), int(p.Lookback.Minutes())))
		}
		// A bad expression only disables the source at registration time.
		if s.Cron == "" && s.IsEnabled() {
			errs = append(errs, fmt.Errorf("%s.cron is required", key))
		}
	}
	return errs
}
