// Package scout serves active resources at request time. It trusts the
// statuses written by the last curator pass and can optionally spot-check
// candidates, but it never changes a resource's status.
package scout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/apperr"
	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/metrics"
)

// DefaultWarnThreshold is the exclusion rate above which a spot check logs
// a high-failure-rate warning.
const DefaultWarnThreshold = 0.30

// WarnOnAnyExclusion used as Config.WarnThreshold logs the warning whenever a
// spot check excludes a resource.
const WarnOnAnyExclusion = -1.0

// Spot-check outcomes reported to metrics.
const (
	spotPassed   = "passed"
	spotExcluded = "excluded"
	spotErrored  = "error"
)

// Loader supplies catalog snapshots. catalog.Store satisfies it.
type Loader interface {
	Load(ctx context.Context) (*catalog.Catalog, error)
}

// Checker spot-checks a single URL.
type Checker interface {
	Check(ctx context.Context, rawURL string) (bool, error)
}

// Config tunes the scout. A zero WarnThreshold selects DefaultWarnThreshold;
// any negative value behaves as WarnOnAnyExclusion.
type Config struct {
	WarnThreshold float64
}

// Scout gathers active resources for a domain.
type Scout struct {
	loader  Loader
	checker Checker
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Scout. checker may be nil, in which case verification
// requests are ignored.
func New(loader Loader, checker Checker, cfg Config, logger *zap.Logger) *Scout {
	switch {
	case cfg.WarnThreshold == 0:
		cfg.WarnThreshold = DefaultWarnThreshold
	case cfg.WarnThreshold < 0:
		cfg.WarnThreshold = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scout{loader: loader, checker: checker, cfg: cfg, logger: logger}
}

// Gather loads the catalog and returns the active resources for domain.
// An empty domain means catalog.DefaultDomain.
func (s *Scout) Gather(ctx context.Context, domain string, verify bool) ([]catalog.Resource, error) {
	if domain == "" {
		domain = catalog.DefaultDomain
	}
	snapshot, err := s.load(ctx, domain)
	if err != nil {
		return nil, err
	}
	return s.GatherFrom(ctx, snapshot, domain, verify)
}

// GatherFrom runs the gather rules against an already loaded snapshot.
func (s *Scout) GatherFrom(ctx context.Context, snapshot *catalog.Catalog, domain string, verify bool) ([]catalog.Resource, error) {
	if domain == "" {
		domain = catalog.DefaultDomain
	}
	candidates := snapshot.ActiveResources(domain)
	if len(candidates) == 0 {
		s.logger.Warn("no active resources", zap.String("domain", domain))
		return nil, apperr.NoResources(domain)
	}
	s.logger.Info("loaded active resources", zap.String("domain", domain), zap.Int("count", len(candidates)))

	if !verify || s.checker == nil {
		return candidates, nil
	}

	kept := s.spotCheck(ctx, domain, candidates)
	if len(kept) == 0 {
		s.logger.Error("all resources failed spot check", zap.String("domain", domain))
		return nil, apperr.NoResources(domain)
	}
	return kept, nil
}

// Resource looks up one resource by id regardless of status.
func (s *Scout) Resource(ctx context.Context, domain, id string) (catalog.Resource, error) {
	if id == "" {
		return catalog.Resource{}, apperr.Validation("id", "must not be empty")
	}
	if domain == "" {
		domain = catalog.DefaultDomain
	}
	snapshot, err := s.load(ctx, domain)
	if err != nil {
		return catalog.Resource{}, err
	}
	r, ok := snapshot.Resource(id)
	if !ok {
		return catalog.Resource{}, apperr.NotFound(id)
	}
	return r, nil
}

func (s *Scout) load(ctx context.Context, domain string) (*catalog.Catalog, error) {
	snapshot, err := s.loader.Load(ctx)
	switch {
	case err == nil:
		return snapshot, nil
	case errors.Is(err, catalog.ErrNotFound):
		// A missing catalog in dev behaves like an empty one.
		s.logger.Warn("catalog not found, using empty catalog", zap.Error(err))
		return &catalog.Catalog{Domain: domain}, nil
	default:
		s.logger.Error("failed to load catalog", zap.String("domain", domain), zap.Error(err))
		return nil, apperr.ResourceLoad(domain, err)
	}
}

func (s *Scout) spotCheck(ctx context.Context, domain string, candidates []catalog.Resource) []catalog.Resource {
	kept := make([]catalog.Resource, 0, len(candidates))
	excluded := 0
	for _, r := range candidates {
		live, err := s.check(ctx, r.URL)
		switch {
		case err != nil:
			// The last curator verdict wins over a flaky ad hoc check.
			s.logger.Warn("spot check error, keeping resource",
				zap.String("resource_id", r.ID), zap.Error(err))
			metrics.ObserveSpotCheck(spotErrored)
			kept = append(kept, r)
		case live:
			metrics.ObserveSpotCheck(spotPassed)
			kept = append(kept, r)
		default:
			s.logger.Info("spot check failed, excluding resource",
				zap.String("resource_id", r.ID), zap.String("url", r.URL))
			metrics.ObserveSpotCheck(spotExcluded)
			excluded++
		}
	}

	rate := float64(excluded) / float64(len(candidates))
	if rate > s.cfg.WarnThreshold {
		s.logger.Warn("high spot check failure rate",
			zap.String("domain", domain),
			zap.Int("excluded", excluded),
			zap.Int("checked", len(candidates)),
			zap.Float64("failure_rate_percent", rate*100),
		)
	}
	return kept
}

func (s *Scout) check(ctx context.Context, url string) (live bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			live, err = false, fmt.Errorf("spot check panicked: %v", r)
		}
	}()
	return s.checker.Check(ctx, url)
}
