// Package curator runs the periodic freshness pass over the whole catalog:
// every resource is probed, its status advanced through the freshness state
// machine and its verification time stamped.
package curator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/freshness"
	"github.com/JakeFAU/clew-freshness/internal/telemetry"
)

// DefaultAlertThreshold is the non-active share above which a run alerts.
const DefaultAlertThreshold = 0.10

// AlertOnAnyFailure used as Config.AlertThreshold makes a single non-active
// resource raise the alert.
const AlertOnAnyFailure = -1.0

// Config controls a curator pass.
type Config struct {
	// AlertThreshold is compared with a strict greater-than. Zero selects
	// DefaultAlertThreshold; any negative value behaves as AlertOnAnyFailure.
	AlertThreshold float64
	// Concurrency bounds parallel probes. Values below 1 mean sequential.
	Concurrency int
}

// Stats aggregates one pass.
type Stats struct {
	Counts      map[freshness.Status]int `json:"counts"`
	Errors      int                      `json:"errors"`
	Total       int                      `json:"total"`
	Failed      int                      `json:"failed"`
	FailureRate float64                  `json:"failure_rate"`
	Alert       bool                     `json:"alert"`
}

// FailurePercent returns the failure rate as a percentage.
func (s Stats) FailurePercent() float64 {
	return s.FailureRate * 100
}

func newStats() Stats {
	counts := make(map[freshness.Status]int, len(freshness.All))
	for _, s := range freshness.All {
		counts[s] = 0
	}
	return Stats{Counts: counts}
}

// Pipeline applies one curator pass to a catalog snapshot.
type Pipeline struct {
	checker Checker
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(checker Checker, clock Clock, cfg Config, logger *zap.Logger) *Pipeline {
	switch {
	case cfg.AlertThreshold == 0:
		cfg.AlertThreshold = DefaultAlertThreshold
	case cfg.AlertThreshold < 0:
		cfg.AlertThreshold = 0
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{checker: checker, clock: clock, cfg: cfg, logger: logger}
}

// WorstCase is the longest a pass over n resources can take when every
// probe uses its full budget.
func (p *Pipeline) WorstCase(n int, perProbe time.Duration) time.Duration {
	if n <= 0 || perProbe <= 0 {
		return 0
	}
	waves := (n + p.cfg.Concurrency - 1) / p.cfg.Concurrency
	return time.Duration(waves) * perProbe
}

type verdict struct {
	live bool
	err  error
}

// Run verifies every resource and returns an updated copy of in. The input
// is not modified. Per-resource failures never abort the pass; only a
// cancelled context does, in which case no catalog is returned.
func (p *Pipeline) Run(ctx context.Context, in *catalog.Catalog) (*catalog.Catalog, Stats, error) {
	if in == nil {
		return nil, Stats{}, fmt.Errorf("curator: nil catalog")
	}
	ctx, span := telemetry.Tracer("curator").Start(ctx, "curator.run")
	defer span.End()

	out := in.Clone()
	now := p.clock.Now().UTC()

	p.logger.Info("starting freshness check", zap.Int("resources", len(out.Resources)))

	verdicts := p.checkAll(ctx, out.Resources)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "interrupted")
		return nil, Stats{}, fmt.Errorf("curator run interrupted: %w", err)
	}

	stats := newStats()
	for i := range out.Resources {
		r := &out.Resources[i]
		v := verdicts[i]
		if v.err != nil {
			stats.Errors++
			p.logger.Warn("error checking resource",
				zap.String("resource_id", r.ID),
				zap.String("url", r.URL),
				zap.Error(v.err),
			)
		}
		next := freshness.Next(r.Status, v.live && v.err == nil)
		if next != r.Status {
			p.logger.Debug("status changed",
				zap.String("resource_id", r.ID),
				zap.String("from", r.Status.String()),
				zap.String("to", next.String()),
			)
		}
		r.Status = next
		r.LastVerified = latest(r.LastVerified, now)
		stats.Counts[next]++
	}
	out.LastCurated = latest(out.LastCurated, now)

	stats.Total = len(out.Resources)
	stats.Failed = stats.Total - stats.Counts[freshness.StatusActive]
	if stats.Total > 0 {
		stats.FailureRate = float64(stats.Failed) / float64(stats.Total)
	}
	stats.Alert = stats.FailureRate > p.cfg.AlertThreshold
	span.SetAttributes(
		attribute.Int("curator.total", stats.Total),
		attribute.Int("curator.failed", stats.Failed),
		attribute.Int("curator.errors", stats.Errors),
		attribute.Bool("curator.alert", stats.Alert),
	)

	p.logger.Info("freshness check complete",
		zap.Int("total", stats.Total),
		zap.Int("active", stats.Counts[freshness.StatusActive]),
		zap.Int("degraded", stats.Counts[freshness.StatusDegraded]),
		zap.Int("stale", stats.Counts[freshness.StatusStale]),
		zap.Int("dead", stats.Counts[freshness.StatusDead]),
		zap.Int("errors", stats.Errors),
		zap.Float64("failure_rate_percent", stats.FailurePercent()),
	)
	if stats.Alert {
		p.logger.Error("failure rate exceeds threshold",
			zap.Float64("failure_rate_percent", stats.FailurePercent()),
			zap.Float64("threshold_percent", p.cfg.AlertThreshold*100),
			zap.Int("failed", stats.Failed),
			zap.Int("total", stats.Total),
		)
	}
	return out, stats, nil
}

func (p *Pipeline) checkAll(ctx context.Context, resources []catalog.Resource) []verdict {
	verdicts := make([]verdict, len(resources))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i := range resources {
		url := resources[i].URL
		g.Go(func() error {
			verdicts[i] = p.checkOne(ctx, url)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors
	return verdicts
}

func (p *Pipeline) checkOne(ctx context.Context, url string) (v verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = verdict{err: fmt.Errorf("check panicked: %v", r)}
		}
	}()
	live, err := p.checker.Check(ctx, url)
	return verdict{live: live, err: err}
}

func latest(prev, now time.Time) time.Time {
	if prev.After(now) {
		return prev
	}
	return now
}
