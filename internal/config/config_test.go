package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

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
verifier:
  timeout: 10s
  max_retries: 3
  backoff_base: 500ms
  rate_limit_per_host: 2
curator:
  alert_threshold: 0.2
  concurrency: 4
scout:
  verify: true
catalog:
  provider: s3
  s3:
    bucket: clew-resources
    key: resources/ai.json
    region: us-east-1
database:
  dsn: postgres://localhost/clew
pubsub:
  project_id: clew-prod
  topic_name: curator-runs
schedule:
  spec: "@daily"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 10*time.Second, cfg.Verifier.Timeout)
	require.Equal(t, 3, cfg.Verifier.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.Verifier.BackoffBase)
	require.InDelta(t, 2.0, cfg.Verifier.RateLimitPerHost, 1e-9)
	require.InDelta(t, 0.2, cfg.Curator.AlertThreshold, 1e-9)
	require.Equal(t, 4, cfg.Curator.Concurrency)
	require.True(t, cfg.Scout.Verify)
	require.Equal(t, ProviderS3, cfg.Catalog.Provider)
	require.Equal(t, "clew-resources", cfg.Catalog.S3.Bucket)
	require.Equal(t, "resources/ai.json", cfg.Catalog.S3.Key)
	require.Equal(t, "postgres://localhost/clew", cfg.Database.DSN)
	require.Equal(t, "curator-runs", cfg.PubSub.TopicName)
	require.Equal(t, "@daily", cfg.Schedule.Spec)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Verifier.Timeout)
	require.Equal(t, 2, cfg.Verifier.MaxRetries)
	require.Equal(t, time.Second, cfg.Verifier.BackoffBase)
	require.Equal(t, "ClewDirective/1.0 (resource-verification)", cfg.Verifier.UserAgent)
	require.InDelta(t, 0.10, cfg.Curator.AlertThreshold, 1e-9)
	require.Equal(t, 1, cfg.Curator.Concurrency)
	require.False(t, cfg.Logging.TraceSpans)
	require.InDelta(t, 0.30, cfg.Scout.WarnThreshold, 1e-9)
	require.Equal(t, ProviderFile, cfg.Catalog.Provider)
	require.Equal(t, "curator_runs", cfg.Database.Table)
	require.Equal(t, "0 6 * * 1", cfg.Schedule.Spec)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CLEW_SERVER_PORT", "7070")
	t.Setenv("CLEW_CATALOG_PROVIDER", "memory")
	t.Setenv("CLEW_VERIFIER_MAX_RETRIES", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, ProviderMemory, cfg.Catalog.Provider)
	require.Zero(t, cfg.Verifier.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Verifier: VerifierConfig{Timeout: time.Second, MaxRetries: 2, BackoffBase: time.Second},
			Curator:  CuratorConfig{AlertThreshold: 0.1, Concurrency: 1},
			Scout:    ScoutConfig{WarnThreshold: 0.3},
			Catalog:  CatalogConfig{Provider: ProviderFile, File: FileStore{Path: "resources.json"}},
			Schedule: ScheduleConfig{Spec: "0 6 * * 1"},
		}
	}
	require.NoError(t, base().Validate())

	zero := base()
	zero.Curator.AlertThreshold = 0
	zero.Scout.WarnThreshold = 0
	require.NoError(t, zero.Validate(), "zero thresholds mean any failure")

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"timeout", func(c *Config) { c.Verifier.Timeout = 0 }, "verifier.timeout"},
		{"retries", func(c *Config) { c.Verifier.MaxRetries = -1 }, "verifier.max_retries"},
		{"alert threshold", func(c *Config) { c.Curator.AlertThreshold = 1.5 }, "curator.alert_threshold"},
		{"concurrency", func(c *Config) { c.Curator.Concurrency = 0 }, "curator.concurrency"},
		{"negative alert threshold", func(c *Config) { c.Curator.AlertThreshold = -0.1 }, "curator.alert_threshold"},
		{"warn threshold", func(c *Config) { c.Scout.WarnThreshold = 1 }, "scout.warn_threshold"},
		{"negative warn threshold", func(c *Config) { c.Scout.WarnThreshold = -0.5 }, "scout.warn_threshold"},
		{"file path", func(c *Config) { c.Catalog.File.Path = "" }, "catalog.file.path"},
		{"s3 bucket", func(c *Config) { c.Catalog.Provider = ProviderS3 }, "catalog.s3.bucket"},
		{"gcs bucket", func(c *Config) { c.Catalog.Provider = ProviderGCS }, "catalog.gcs.bucket"},
		{"provider", func(c *Config) { c.Catalog.Provider = "ftp" }, "catalog.provider"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "runs" }, "pubsub.project_id"},
		{"schedule", func(c *Config) { c.Schedule.Spec = " " }, "schedule.spec"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}

func TestProbeBudget(t *testing.T) {
	t.Parallel()

	cfg := Config{Verifier: VerifierConfig{Timeout: 5 * time.Second, MaxRetries: 2, BackoffBase: time.Second}}
	// three attempts plus 1s and 2s of backoff
	require.Equal(t, 18*time.Second, cfg.ProbeBudget())
}
