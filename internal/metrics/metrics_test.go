package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if curatorResources == nil || verifierAttemptsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCuratorRun(t *testing.T) {
	ObserveCuratorRun(RunSummary{
		StatusCounts:       map[string]int{"active": 3, "degraded": 1, "stale": 0, "dead": 1},
		Total:              5,
		Failed:             2,
		FailureRatePercent: 40,
		Alert:              true,
	})

	if val := testutil.ToFloat64(curatorResources.WithLabelValues("active")); val != 3 {
		t.Errorf("expected 3 active resources, got %f", val)
	}
	if val := testutil.ToFloat64(curatorFailureRatePercent); val != 40 {
		t.Errorf("expected failure rate 40, got %f", val)
	}
	if val := testutil.ToFloat64(curatorAlert); val != 1 {
		t.Errorf("expected alert gauge set, got %f", val)
	}

	ObserveCuratorRun(RunSummary{StatusCounts: map[string]int{"active": 5}, Total: 5})
	if val := testutil.ToFloat64(curatorAlert); val != 0 {
		t.Errorf("expected alert gauge cleared, got %f", val)
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(verifierAttemptsTotal.WithLabelValues("live"))
	ObserveVerifierAttempt("live")
	if got := testutil.ToFloat64(verifierAttemptsTotal.WithLabelValues("live")) - before; got != 1 {
		t.Errorf("expected one live attempt, got %f", got)
	}

	before = testutil.ToFloat64(curatorRunsTotal.WithLabelValues("failed"))
	ObserveCuratorResult("failed")
	if got := testutil.ToFloat64(curatorRunsTotal.WithLabelValues("failed")) - before; got != 1 {
		t.Errorf("expected one failed run, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
