// Package verifier performs lightweight liveness probes against resource URLs.
//
// A probe is a HEAD request: no body is downloaded. A response in [200, 400)
// counts as live. Failed attempts are retried with a linearly growing delay,
// and the public Verify contract always resolves to a boolean.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/metrics"
	"github.com/JakeFAU/clew-freshness/internal/telemetry"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxRetries  = 2
	DefaultBackoffBase = time.Second
	DefaultUserAgent   = "ClewDirective/1.0 (resource-verification)"
)

// MaxRedirects bounds the redirect chain of one probe.
const MaxRedirects = 10

// ErrRedirectLoop is reported for an attempt whose redirect chain did not
// terminate within MaxRedirects hops.
var ErrRedirectLoop = errors.New("too many redirects")

// ErrUnexpected marks a probe that failed for a reason outside the verifier
// contract, such as a recovered panic.
var ErrUnexpected = errors.New("unexpected verification failure")

// Limiter spaces probes to the same host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls probe behavior.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	UserAgent   string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Limiter   Limiter
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase < 0 {
		c.BackoffBase = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// DefaultConfig returns the production probe settings.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
		UserAgent:   DefaultUserAgent,
	}
}

// Verifier issues HEAD probes through a shared Colly collector.
type Verifier struct {
	cfg       Config
	collector *colly.Collector
	sleep     func(context.Context, time.Duration) error
	logger    *zap.Logger
}

// New builds a Verifier.
func New(cfg Config, logger *zap.Logger) *Verifier {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.IgnoreRobotsTxt = true
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	}
	c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= MaxRedirects {
			return fmt.Errorf("%w: %d hops from %s", ErrRedirectLoop, len(via), via[0].URL)
		}
		return nil
	})
	c.SetRequestTimeout(cfg.Timeout)
	return &Verifier{
		cfg:       cfg,
		collector: c,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// Verify reports whether url is live. It never panics and never returns an
// error: invalid input, exhausted retries and unexpected failures all
// resolve to false.
func (v *Verifier) Verify(ctx context.Context, rawURL string) bool {
	live, err := v.Check(ctx, rawURL)
	if err != nil {
		v.logger.Warn("verification aborted", zap.String("url", truncate(rawURL)), zap.Error(err))
		return false
	}
	return live
}

// Check is Verify with the unexpected-failure path made explicit: err is
// non-nil only when the probe was cancelled or failed outside the normal
// transport/status outcomes. Ordinary dead URLs report (false, nil).
func (v *Verifier) Check(ctx context.Context, rawURL string) (live bool, err error) {
	ctx, span := telemetry.Tracer("verifier").Start(ctx, "verifier.check")
	defer func() {
		if r := recover(); r != nil {
			live = false
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
		span.SetAttributes(attribute.Bool("verifier.live", live))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if !Acceptable(rawURL) {
		v.logger.Warn("invalid url", zap.String("url", truncate(rawURL)))
		metrics.ObserveVerifierAttempt("invalid")
		return false, nil
	}

	attempts := v.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := v.sleep(ctx, v.cfg.BackoffBase*time.Duration(attempt-1)); err != nil {
				return false, err
			}
		}
		if v.cfg.Limiter != nil {
			if err := v.cfg.Limiter.Wait(ctx, rawURL); err != nil {
				return false, err
			}
		}
		status, probeErr := v.probe(ctx, rawURL)
		if isLive(status) {
			metrics.ObserveVerifierAttempt("live")
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		outcome := "transport_error"
		if status != 0 {
			outcome = "http_error"
		}
		metrics.ObserveVerifierAttempt(outcome)
		v.logger.Info("liveness attempt failed",
			zap.String("url", truncate(rawURL)),
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(probeErr),
		)
	}
	return false, nil
}

// probe performs one HEAD request and returns the final status code, or 0
// when no response was received.
func (v *Verifier) probe(ctx context.Context, rawURL string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	c := v.collector.Clone()
	c.Context = attemptCtx

	var (
		status     int
		unresolved bool
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		// A redirect that is still pending after the client gave up.
		unresolved = status >= http.StatusMultipleChoices && status < http.StatusBadRequest &&
			r.Headers != nil && r.Headers.Get("Location") != ""
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Head(rawURL)
	if errors.Is(err, ErrRedirectLoop) || unresolved {
		return 0, fmt.Errorf("%w: last status %d", ErrRedirectLoop, status)
	}
	if err == nil && status == 0 {
		err = errors.New("no response received")
	}
	if err != nil && isLive(status) {
		// Colly reports some 2xx codes (203, 204) as errors.
		err = nil
	}
	if err == nil && !isLive(status) {
		err = fmt.Errorf("http status %d", status)
	}
	return status, err
}

// Acceptable reports whether rawURL is worth probing: a non-empty http or
// https URL with a host.
func Acceptable(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host != ""
}

func isLive(status int) bool {
	return status >= http.StatusOK && status < http.StatusBadRequest
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string) string {
	const limit = 100
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
