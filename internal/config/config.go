// Package config loads and validates linkpipe configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fetcher modes.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
)

// Trace exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds one API request, including the run it starts.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxSeeds caps the urls accepted by one API request.
	MaxSeeds int `mapstructure:"max_seeds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig tunes the two-stage pipeline.
type PipelineConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	HandoffBuffer int           `mapstructure:"handoff_buffer"`
	OutputBuffer  int           `mapstructure:"output_buffer"`
}

// FetcherConfig selects and configures the page fetcher.
type FetcherConfig struct {
	Mode            string         `mapstructure:"mode"`
	UserAgent       string         `mapstructure:"user_agent"`
	FollowRedirects bool           `mapstructure:"follow_redirects"`
	Headless        HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	ExecPath    string        `mapstructure:"exec_path"`
	Settle      time.Duration `mapstructure:"settle"`
}

// OutputConfig lists link destinations. The file destination is always on;
// the others are opt-in.
type OutputConfig struct {
	File     string         `mapstructure:"file"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// GCSConfig writes one object per run.
type GCSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig publishes one message per link.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// PostgresConfig inserts one row per link.
type PostgresConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	CreateTable bool   `mapstructure:"create_table"`
}

// RedisConfig appends links to a list per run.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig controls zap output and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ProgressConfig tunes the progress hub and its sinks.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	Bar            bool          `mapstructure:"bar"`
	Log            bool          `mapstructure:"log"`
}

// Load builds a Config from defaults, an optional file and LINKPIPE_*
// environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKPIPE")
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
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.max_seeds", 1000)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.fetch_timeout", "30s")
	v.SetDefault("pipeline.idle_timeout", "30s")
	v.SetDefault("pipeline.handoff_buffer", 16)
	v.SetDefault("pipeline.output_buffer", 256)
	v.SetDefault("fetcher.mode", FetcherColly)
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.follow_redirects", false)
	v.SetDefault("fetcher.headless.enabled", true)
	v.SetDefault("fetcher.headless.max_parallel", 2)
	v.SetDefault("fetcher.headless.nav_timeout", "45s")
	v.SetDefault("fetcher.headless.exec_path", "")
	v.SetDefault("fetcher.headless.settle", "500ms")
	v.SetDefault("output.file", "extracted_links.txt")
	v.SetDefault("output.gcs.enabled", false)
	v.SetDefault("output.gcs.bucket", "")
	v.SetDefault("output.gcs.prefix", "runs")
	v.SetDefault("output.pubsub.enabled", false)
	v.SetDefault("output.pubsub.project_id", "")
	v.SetDefault("output.pubsub.topic", "")
	v.SetDefault("output.postgres.enabled", false)
	v.SetDefault("output.postgres.dsn", "")
	v.SetDefault("output.postgres.table", "extracted_links")
	v.SetDefault("output.postgres.max_conns", 4)
	v.SetDefault("output.postgres.create_table", false)
	v.SetDefault("output.redis.enabled", false)
	v.SetDefault("output.redis.addr", "localhost:6379")
	v.SetDefault("output.redis.password", "")
	v.SetDefault("output.redis.db", 0)
	v.SetDefault("output.redis.prefix", "linkpipe:links")
	v.SetDefault("output.redis.ttl", "0s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "linkpipe")
	v.SetDefault("telemetry.exporter", ExporterNone)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.flush_interval", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("progress.bar", false)
	v.SetDefault("progress.log", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Server.MaxSeeds <= 0 {
		return fmt.Errorf("server.max_seeds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Fetcher.validate(); err != nil {
		return err
	}
	if err := c.Output.validate(); err != nil {
		return err
	}
	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	default:
		return fmt.Errorf("telemetry.exporter must be %q or %q, got %q", ExporterNone, ExporterStdout, c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	return nil
}

func (p PipelineConfig) validate() error {
	if p.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if p.FetchTimeout <= 0 {
		return fmt.Errorf("pipeline.fetch_timeout must be > 0")
	}
	if p.IdleTimeout < 0 {
		return fmt.Errorf("pipeline.idle_timeout must be >= 0")
	}
	if p.HandoffBuffer < 0 || p.OutputBuffer < 0 {
		return fmt.Errorf("pipeline buffers must be >= 0")
	}
	return nil
}

func (f FetcherConfig) validate() error {
	switch f.Mode {
	case FetcherColly:
	case FetcherHeadless:
		if f.Headless.Enabled && f.Headless.MaxParallel <= 0 {
			return fmt.Errorf("fetcher.headless.max_parallel must be > 0 when headless is enabled")
		}
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q, got %q", FetcherColly, FetcherHeadless, f.Mode)
	}
	return nil
}

func (o OutputConfig) validate() error {
	if o.GCS.Enabled && o.GCS.Bucket == "" {
		return fmt.Errorf("output.gcs.bucket must be set when gcs output is enabled")
	}
	if o.PubSub.Enabled && (o.PubSub.ProjectID == "" || o.PubSub.Topic == "") {
		return fmt.Errorf("output.pubsub.project_id and output.pubsub.topic must be set when pubsub output is enabled")
	}
	if o.Postgres.Enabled && o.Postgres.DSN == "" {
		return fmt.Errorf("output.postgres.dsn must be set when postgres output is enabled")
	}
	if o.Redis.Enabled && o.Redis.Addr == "" {
		return fmt.Errorf("output.redis.addr must be set when redis output is enabled")
	}
	return nil
}
