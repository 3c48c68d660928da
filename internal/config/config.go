// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Catalog store providers.
const (
	ProviderFile   = "file"
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Verifier VerifierConfig `mapstructure:"verifier"`
	Curator  CuratorConfig  `mapstructure:"curator"`
	Scout    ScoutConfig    `mapstructure:"scout"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features. TraceSpans writes every
// finished trace span to the logger at debug level.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	TraceSpans  bool `mapstructure:"trace_spans"`
}

// VerifierConfig configures URL liveness probes.
type VerifierConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	UserAgent        string        `mapstructure:"user_agent"`
	RateLimitPerHost float64       `mapstructure:"rate_limit_per_host"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
}

// CuratorConfig governs the periodic freshness pass.
type CuratorConfig struct {
	AlertThreshold float64       `mapstructure:"alert_threshold"`
	Concurrency    int           `mapstructure:"concurrency"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
}

// ScoutConfig governs request-time gathering.
type ScoutConfig struct {
	WarnThreshold float64 `mapstructure:"warn_threshold"`
	// Verify enables spot checks for requests that do not say otherwise.
	Verify bool `mapstructure:"verify"`
}

// CatalogConfig selects where the catalog document lives.
type CatalogConfig struct {
	Provider string    `mapstructure:"provider"`
	File     FileStore `mapstructure:"file"`
	S3       S3Store   `mapstructure:"s3"`
	GCS      GCSStore  `mapstructure:"gcs"`
}

// FileStore locates a catalog on local disk.
type FileStore struct {
	Path string `mapstructure:"path"`
}

// S3Store locates a catalog object in S3.
type S3Store struct {
	Bucket   string `mapstructure:"bucket"`
	Key      string `mapstructure:"key"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// GCSStore locates a catalog object in Cloud Storage.
type GCSStore struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// DatabaseConfig controls the optional run history database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ScheduleConfig drives the long-running scheduler.
type ScheduleConfig struct {
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLEW")
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
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.trace_spans", false)
	v.SetDefault("verifier.timeout", "5s")
	v.SetDefault("verifier.max_retries", 2)
	v.SetDefault("verifier.backoff_base", "1s")
	v.SetDefault("verifier.user_agent", "ClewDirective/1.0 (resource-verification)")
	v.SetDefault("verifier.rate_limit_per_host", 0)
	v.SetDefault("verifier.rate_limit_burst", 1)
	v.SetDefault("curator.alert_threshold", 0.10)
	v.SetDefault("curator.concurrency", 1)
	v.SetDefault("curator.job_timeout", "15m")
	v.SetDefault("scout.warn_threshold", 0.30)
	v.SetDefault("scout.verify", false)
	v.SetDefault("catalog.provider", ProviderFile)
	v.SetDefault("catalog.file.path", "data/resources.json")
	v.SetDefault("catalog.s3.bucket", "")
	v.SetDefault("catalog.s3.key", "resources/ai-foundations.json")
	v.SetDefault("catalog.s3.region", "")
	v.SetDefault("catalog.s3.endpoint", "")
	v.SetDefault("catalog.gcs.bucket", "")
	v.SetDefault("catalog.gcs.object", "resources/ai-foundations.json")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "curator_runs")
	v.SetDefault("database.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("schedule.spec", "0 6 * * 1")
	v.SetDefault("schedule.run_on_start", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Verifier.Timeout <= 0 {
		return fmt.Errorf("verifier.timeout must be > 0")
	}
	if c.Verifier.MaxRetries < 0 {
		return fmt.Errorf("verifier.max_retries must be >= 0")
	}
	if c.Verifier.BackoffBase < 0 {
		return fmt.Errorf("verifier.backoff_base must be >= 0")
	}
	if c.Curator.AlertThreshold < 0 || c.Curator.AlertThreshold >= 1 {
		return fmt.Errorf("curator.alert_threshold must be in [0, 1)")
	}
	if c.Curator.Concurrency <= 0 {
		return fmt.Errorf("curator.concurrency must be > 0")
	}
	if c.Scout.WarnThreshold < 0 || c.Scout.WarnThreshold >= 1 {
		return fmt.Errorf("scout.warn_threshold must be in [0, 1)")
	}
	switch c.Catalog.Provider {
	case ProviderFile:
		if c.Catalog.File.Path == "" {
			return fmt.Errorf("catalog.file.path is required for the file provider")
		}
	case ProviderS3:
		if c.Catalog.S3.Bucket == "" || c.Catalog.S3.Key == "" {
			return fmt.Errorf("catalog.s3.bucket and catalog.s3.key are required for the s3 provider")
		}
	case ProviderGCS:
		if c.Catalog.GCS.Bucket == "" || c.Catalog.GCS.Object == "" {
			return fmt.Errorf("catalog.gcs.bucket and catalog.gcs.object are required for the gcs provider")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("catalog.provider %q is not supported", c.Catalog.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if strings.TrimSpace(c.Schedule.Spec) == "" {
		return fmt.Errorf("schedule.spec must not be empty")
	}
	return nil
}

// ProbeBudget is the worst-case wall clock for verifying one URL.
func (c Config) ProbeBudget() time.Duration {
	retries := time.Duration(c.Verifier.MaxRetries)
	backoff := c.Verifier.BackoffBase * retries * (retries + 1) / 2
	return c.Verifier.Timeout*(retries+1) + backoff
}
