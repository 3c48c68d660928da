// Package app builds the long-lived services from configuration and holds
// them for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/catalog/store/gcs"
	"github.com/JakeFAU/clew-freshness/internal/catalog/store/local"
	"github.com/JakeFAU/clew-freshness/internal/catalog/store/memory"
	"github.com/JakeFAU/clew-freshness/internal/catalog/store/s3store"
	"github.com/JakeFAU/clew-freshness/internal/clock/system"
	"github.com/JakeFAU/clew-freshness/internal/config"
	"github.com/JakeFAU/clew-freshness/internal/curator"
	"github.com/JakeFAU/clew-freshness/internal/hash/sha256"
	"github.com/JakeFAU/clew-freshness/internal/id/uuid"
	"github.com/JakeFAU/clew-freshness/internal/logging"
	"github.com/JakeFAU/clew-freshness/internal/policy/ratelimit"
	"github.com/JakeFAU/clew-freshness/internal/publisher/pubsub"
	"github.com/JakeFAU/clew-freshness/internal/runlog"
	"github.com/JakeFAU/clew-freshness/internal/runlog/postgres"
	"github.com/JakeFAU/clew-freshness/internal/scout"
	"github.com/JakeFAU/clew-freshness/internal/telemetry"
	"github.com/JakeFAU/clew-freshness/internal/verifier"
)

// App holds the shared services for one process.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    catalog.Store
	Verifier *verifier.Verifier
	Scout    *scout.Scout
	Job      *curator.Job
	Runs     runlog.Store

	closers []func()
}

type options struct {
	store     catalog.Store
	transport http.RoundTripper
	publisher curator.Publisher
	runs      runlog.Store
}

// Option overrides a service that would otherwise be built from config.
type Option func(*options)

// WithStore uses store instead of the configured catalog provider.
func WithStore(store catalog.Store) Option {
	return func(o *options) { o.store = store }
}

// WithTransport routes verifier probes through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithPublisher uses pub for run events instead of Pub/Sub.
func WithPublisher(pub curator.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// WithRunLog uses runs instead of the configured run history.
func WithRunLog(runs runlog.Store) Option {
	return func(o *options) { o.runs = runs }
}

// New builds every service. It fails fast when a configured backend cannot
// be initialized, closing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.initTracing(ctx); err != nil {
		return nil, err
	}

	a.Store = o.store
	if a.Store == nil {
		if a.Store, err = a.newStore(ctx); err != nil {
			return nil, err
		}
	}

	vcfg := verifier.Config{
		Timeout:     cfg.Verifier.Timeout,
		MaxRetries:  cfg.Verifier.MaxRetries,
		BackoffBase: cfg.Verifier.BackoffBase,
		UserAgent:   cfg.Verifier.UserAgent,
		Transport:   o.transport,
	}
	if cfg.Verifier.RateLimitPerHost > 0 {
		vcfg.Limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Verifier.RateLimitPerHost,
			DefaultBurst: cfg.Verifier.RateLimitBurst,
		})
	}
	a.Verifier = verifier.New(vcfg, logging.Named(logger, "verifier"))

	warn := cfg.Scout.WarnThreshold
	if warn == 0 {
		warn = scout.WarnOnAnyExclusion
	}
	a.Scout = scout.New(a.Store, a.Verifier, scout.Config{WarnThreshold: warn},
		logging.Named(logger, "scout"))

	a.Runs = o.runs
	if a.Runs == nil {
		if a.Runs, err = a.newRunLog(ctx); err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, a.Runs.Close)

	pub := o.publisher
	if pub == nil && cfg.PubSub.TopicName != "" {
		if pub, err = a.newPublisher(ctx); err != nil {
			return nil, err
		}
	}

	clk := system.New()
	pipeline := curator.NewPipeline(a.Verifier, clk, curator.Config{
		AlertThreshold: alertThreshold(cfg.Curator.AlertThreshold),
		Concurrency:    cfg.Curator.Concurrency,
	}, logging.Named(logger, "curator"))

	a.Job, err = curator.NewJob(curator.JobDeps{
		Store:       a.Store,
		Pipeline:    pipeline,
		Clock:       clk,
		IDs:         uuid.New(),
		Hasher:      sha256.New(),
		Recorder:    a.Runs,
		Publisher:   pub,
		Topic:       cfg.PubSub.TopicName,
		ProbeBudget: cfg.ProbeBudget(),
		Logger:      logging.Named(logger, "curator"),
	})
	if err != nil {
		return nil, fmt.Errorf("build curator job: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("catalog_provider", cfg.Catalog.Provider),
		zap.Bool("run_log_postgres", cfg.Database.DSN != ""),
		zap.Bool("pubsub", pub != nil && cfg.PubSub.TopicName != ""),
		zap.Duration("probe_budget", cfg.ProbeBudget()),
		zap.Duration("job_timeout", cfg.Curator.JobTimeout),
	)
	return a, nil
}

// alertThreshold maps a configured zero, meaning alert on any failure, to the
// curator's explicit sentinel.
func alertThreshold(configured float64) float64 {
	if configured == 0 {
		return curator.AlertOnAnyFailure
	}
	return configured
}

func (a *App) initTracing(ctx context.Context) error {
	var opts []sdktrace.TracerProviderOption
	if a.Config.Logging.TraceSpans {
		opts = append(opts, sdktrace.WithBatcher(telemetry.NewLogExporter(logging.Named(a.Logger, "trace"))))
	}
	tp, err := telemetry.InitTracerProvider(ctx, logging.ServiceName, opts...)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	})
	return nil
}

func (a *App) newStore(ctx context.Context) (catalog.Store, error) {
	cc := a.Config.Catalog
	switch cc.Provider {
	case config.ProviderFile:
		store, err := local.New(local.Config{Path: cc.File.Path})
		if err != nil {
			return nil, fmt.Errorf("init file catalog store: %w", err)
		}
		return store, nil
	case config.ProviderS3:
		s3cfg := s3store.Config{Bucket: cc.S3.Bucket, Key: cc.S3.Key, Region: cc.S3.Region, Endpoint: cc.S3.Endpoint}
		client, err := s3store.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 catalog store: %w", err)
		}
		store, err := s3store.New(client, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 catalog store: %w", err)
		}
		return store, nil
	case config.ProviderGCS:
		store, err := gcs.New(ctx, gcs.DefaultClientFactory{},
			gcs.Config{Bucket: cc.GCS.Bucket, Object: cc.GCS.Object}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs catalog store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
		return store, nil
	case config.ProviderMemory:
		return memory.New(&catalog.Catalog{Domain: catalog.DefaultDomain}), nil
	default:
		return nil, fmt.Errorf("unknown catalog provider: %s", cc.Provider)
	}
}

func (a *App) newRunLog(ctx context.Context) (runlog.Store, error) {
	db := a.Config.Database
	if db.DSN == "" {
		return runlog.NewMemory(runlog.DefaultCapacity), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             db.DSN,
		Table:           db.Table,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init run log: %w", err)
	}
	if db.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("init run log: %w", err)
		}
	}
	return store, nil
}

func (a *App) newPublisher(ctx context.Context) (curator.Publisher, error) {
	client, err := pubsub.NewClient(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	pub := pubsub.New(client)
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.Logger.Warn("error closing pubsub publisher", zap.Error(err))
		}
	})
	return pub, nil
}

// Ready reports whether the catalog store is reachable. A catalog that does
// not exist yet still counts as ready.
func (a *App) Ready(ctx context.Context) error {
	_, err := a.Store.Load(ctx)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("catalog store: %w", err)
	}
	return nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.Logger.Sync() // stderr sync fails on some platforms
}

// Execute runs one curator job bounded by curator.job_timeout.
func (a *App) Execute(ctx context.Context) curator.Result {
	if t := a.Config.Curator.JobTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return a.Job.Execute(ctx)
}
