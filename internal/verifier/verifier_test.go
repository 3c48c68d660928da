package verifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyTransport fails the first `fails` round trips, then answers 200.
type flakyTransport struct {
	mu    sync.Mutex
	calls int
	fails int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("connection refused")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (f *flakyTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("transport exploded")
}

func newTestVerifier(cfg Config) (*Verifier, *[]time.Duration) {
	v := New(cfg, zap.NewNop())
	var mu sync.Mutex
	var delays []time.Duration
	v.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return v, &delays
}

func TestVerifyRejectsInvalidURLsWithoutNetwork(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{}
	v, _ := newTestVerifier(Config{Transport: transport, MaxRetries: 2})

	for _, raw := range []string{"", "ftp://example.com/file", "example.com", "not a url", "http://", "mailto:a@b.c", "HTTP://EXAMPLE.COM"} {
		require.False(t, v.Verify(context.Background(), raw), raw)
	}
	require.Zero(t, transport.Calls())
}

func TestVerifyRetryBudget(t *testing.T) {
	t.Parallel()

	const failures = 2

	ok := &flakyTransport{fails: failures}
	v, _ := newTestVerifier(Config{Transport: ok, MaxRetries: failures})
	require.True(t, v.Verify(context.Background(), "https://example.com/course"))
	require.Equal(t, failures+1, ok.Calls())

	short := &flakyTransport{fails: failures}
	v, _ = newTestVerifier(Config{Transport: short, MaxRetries: failures - 1})
	require.False(t, v.Verify(context.Background(), "https://example.com/course"))
	require.Equal(t, failures, short.Calls())
}

func TestVerifyLinearBackoff(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{fails: 10}
	v, delays := newTestVerifier(Config{Transport: transport, MaxRetries: 2, BackoffBase: 250 * time.Millisecond})

	require.False(t, v.Verify(context.Background(), "https://example.com"))
	require.Equal(t, 3, transport.Calls())
	require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, *delays)
}

func TestVerifyDefaults(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{fails: 10}
	v, delays := newTestVerifier(Config{Transport: transport, MaxRetries: DefaultMaxRetries, BackoffBase: DefaultBackoffBase})

	require.False(t, v.Verify(context.Background(), "http://example.com"))
	require.Equal(t, 3, transport.Calls())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
	require.Equal(t, DefaultTimeout, v.cfg.Timeout)
	require.Equal(t, DefaultUserAgent, v.cfg.UserAgent)
}

func TestVerifyAgainstServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.UserAgent() != DefaultUserAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	var loops atomic.Int32
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		loops.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, _ := newTestVerifier(Config{MaxRetries: 1, Timeout: 2 * time.Second})
	ctx := context.Background()

	require.True(t, v.Verify(ctx, srv.URL+"/ok"))
	require.True(t, v.Verify(ctx, srv.URL+"/ok"), "revisits are allowed")
	require.True(t, v.Verify(ctx, srv.URL+"/moved"))
	require.True(t, v.Verify(ctx, srv.URL+"/empty"))
	require.False(t, v.Verify(ctx, srv.URL+"/gone"))
	require.False(t, v.Verify(ctx, srv.URL+"/broken"))
	require.GreaterOrEqual(t, hits.Load(), int32(3))

	live, err := v.Check(ctx, srv.URL+"/loop")
	require.NoError(t, err)
	require.False(t, live, "a redirect loop is not live")
	require.LessOrEqual(t, loops.Load(), int32(2*(MaxRedirects+1)), "each attempt stops at the redirect limit")
}

func TestSingleAttemptReportsRedirectLoop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	v, _ := newTestVerifier(Config{})
	status, err := v.probe(context.Background(), srv.URL+"/a")
	require.ErrorIs(t, err, ErrRedirectLoop)
	require.Zero(t, status)
}

func TestVerifyTimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	v, _ := newTestVerifier(Config{MaxRetries: 0, Timeout: 50 * time.Millisecond})
	live, err := v.Check(context.Background(), srv.URL)
	require.NoError(t, err)
	require.False(t, live)
}

func TestCheckRecoversPanics(t *testing.T) {
	t.Parallel()

	v, _ := newTestVerifier(Config{Transport: panicTransport{}})

	live, err := v.Check(context.Background(), "https://example.com")
	require.False(t, live)
	require.ErrorIs(t, err, ErrUnexpected)

	require.NotPanics(t, func() {
		require.False(t, v.Verify(context.Background(), "https://example.com"))
	})
}

func TestCheckCancelledContext(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{fails: 10}
	v, _ := newTestVerifier(Config{Transport: transport, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	live, err := v.Check(ctx, "https://example.com")
	require.False(t, live)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, v.Verify(ctx, "https://example.com"))
}

type recordingLimiter struct {
	mu   sync.Mutex
	urls []string
}

func (l *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, rawURL)
	return nil
}

func TestVerifyWaitsOnLimiterPerAttempt(t *testing.T) {
	t.Parallel()

	limiter := &recordingLimiter{}
	v, _ := newTestVerifier(Config{Transport: &flakyTransport{fails: 1}, MaxRetries: 2, Limiter: limiter})

	require.True(t, v.Verify(context.Background(), "https://example.com/x"))
	require.Equal(t, []string{"https://example.com/x", "https://example.com/x"}, limiter.urls)
}

func TestAcceptable(t *testing.T) {
	t.Parallel()

	require.True(t, Acceptable("https://course.fast.ai"))
	require.True(t, Acceptable("http://localhost:8080/path?q=1"))
	require.False(t, Acceptable(""))
	require.False(t, Acceptable("https://"))
	require.False(t, Acceptable("https://bad host/%zz"))
}
