// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Pipeline PipelineConfig         `mapstructure:"pipeline"`
	Sources  []harvest.SourceConfig `mapstructure:"sources"`
	Headless HeadlessConfig         `mapstructure:"headless"`
	Jobs     JobsConfig             `mapstructure:"jobs"`
	Storage  StorageConfig          `mapstructure:"storage"`
	DB       DBConfig               `mapstructure:"db"`
	PubSub   PubSubConfig           `mapstructure:"pubsub"`
	Logging  LoggingConfig          `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PipelineConfig governs the scrape-to-stage run.
type PipelineConfig struct {
	OutputCSV         string  `mapstructure:"output_csv"`
	RateLimitPerSec   float64 `mapstructure:"rate_limit_per_sec"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestTimeoutSec int     `mapstructure:"request_timeout_sec"`
	Retries           int     `mapstructure:"retries"`
	SearchFallback    bool    `mapstructure:"search_fallback"`
	// UseLLM is reserved; the enrichment pass it gates is not implemented.
	UseLLM bool `mapstructure:"use_llm"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// JobsConfig controls the background job orchestrator.
type JobsConfig struct {
	LogDir            string `mapstructure:"log_dir"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	JobTimeoutMinutes int    `mapstructure:"job_timeout_minutes"`
}

// StorageConfig sets where finished staging artifacts are archived.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // "", "gcs", "local"
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("pipeline.output_csv", "ai_tools_seed.csv")
	v.SetDefault("pipeline.rate_limit_per_sec", 1.0)
	v.SetDefault("pipeline.user_agent", "ai-tools-harvester/0.1")
	v.SetDefault("pipeline.request_timeout_sec", 20)
	v.SetDefault("pipeline.retries", 2)
	v.SetDefault("pipeline.search_fallback", true)
	v.SetDefault("pipeline.use_llm", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("jobs.log_dir", "logs")
	v.SetDefault("jobs.queue_depth", 8)
	v.SetDefault("jobs.job_timeout_minutes", 60)
	v.SetDefault("storage.prefix", "jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.OutputCSV == "" {
		return fmt.Errorf("pipeline.output_csv is required")
	}
	if c.Pipeline.RequestTimeoutSec <= 0 {
		return fmt.Errorf("pipeline.request_timeout_sec must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	for i, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	switch c.Storage.Provider {
	case "", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	return nil
}

// RequestTimeout returns the per-request fetch timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pipeline.RequestTimeoutSec) * time.Second
}

// JobTimeout returns the background job budget as a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.JobTimeoutMinutes) * time.Minute
}
