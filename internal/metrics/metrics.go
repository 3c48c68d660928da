// Package metrics exposes Prometheus collectors for the freshness service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	curatorResources           *prometheus.GaugeVec
	curatorTotalResources      prometheus.Gauge
	curatorFailedResources     prometheus.Gauge
	curatorFailureRatePercent  prometheus.Gauge
	curatorAlert               prometheus.Gauge
	curatorRunsTotal           *prometheus.CounterVec
	curatorVerifyErrorsTotal   prometheus.Counter
	verifierAttemptsTotal      *prometheus.CounterVec
	verifierRateLimitDelay     *prometheus.HistogramVec
	scoutSpotChecksTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		curatorResources = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_resources",
				Help: "Resources per freshness status after the last curator run.",
			},
			[]string{"status"},
		)

		curatorTotalResources = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curator_total_resources",
			Help: "Catalog size seen by the last curator run.",
		})

		curatorFailedResources = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curator_failed_resources",
			Help: "Resources not active after the last curator run.",
		})

		curatorFailureRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curator_failure_rate_percent",
			Help: "Share of non-active resources after the last curator run, in percent.",
		})

		curatorAlert = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curator_alert",
			Help: "1 when the last curator run exceeded the failure-rate threshold.",
		})

		curatorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_runs_total",
				Help: "Curator runs, labeled by result.",
			},
			[]string{"result"},
		)

		curatorVerifyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "curator_verification_errors_total",
			Help: "Resources whose verification failed unexpectedly during a curator run.",
		})

		verifierAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_attempts_total",
				Help: "Liveness probe attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		verifierRateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scoutSpotChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_spot_checks_total",
				Help: "Request-time spot-checks, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RunSummary is the per-run data published as gauges.
type RunSummary struct {
	StatusCounts       map[string]int
	Total              int
	Failed             int
	Errors             int
	FailureRatePercent float64
	Alert              bool
}

// ObserveCuratorRun publishes the outcome of a completed curator run.
func ObserveCuratorRun(s RunSummary) {
	Init()
	for status, n := range s.StatusCounts {
		curatorResources.WithLabelValues(status).Set(float64(n))
	}
	curatorTotalResources.Set(float64(s.Total))
	curatorFailedResources.Set(float64(s.Failed))
	curatorFailureRatePercent.Set(s.FailureRatePercent)
	if s.Alert {
		curatorAlert.Set(1)
	} else {
		curatorAlert.Set(0)
	}
	if s.Errors > 0 {
		curatorVerifyErrorsTotal.Add(float64(s.Errors))
	}
}

// ObserveCuratorResult counts a curator job by result ("succeeded" or "failed").
func ObserveCuratorResult(result string) {
	Init()
	curatorRunsTotal.WithLabelValues(result).Inc()
}

// ObserveVerifierAttempt counts one probe attempt.
func ObserveVerifierAttempt(outcome string) {
	Init()
	verifierAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSpotCheck counts one scout spot-check by result.
func ObserveSpotCheck(result string) {
	Init()
	scoutSpotChecksTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	verifierRateLimitDelay.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
