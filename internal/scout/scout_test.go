package scout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/clew-freshness/internal/apperr"
	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/catalog/store/memory"
	"github.com/JakeFAU/clew-freshness/internal/freshness"
)

type errLoader struct{ err error }

func (l errLoader) Load(context.Context) (*catalog.Catalog, error) { return nil, l.err }

type mapChecker struct {
	live   map[string]bool
	errs   map[string]error
	panics map[string]bool
	calls  int
}

func (c *mapChecker) Check(_ context.Context, url string) (bool, error) {
	c.calls++
	if c.panics[url] {
		panic("checker blew up")
	}
	if err := c.errs[url]; err != nil {
		return false, err
	}
	return c.live[url], nil
}

func res(id string, status freshness.Status) catalog.Resource {
	return catalog.Resource{ID: id, URL: "https://example.com/" + id, Status: status}
}

func sampleCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Domain: catalog.DefaultDomain,
		Resources: []catalog.Resource{
			res("a", freshness.StatusActive),
			res("b", freshness.StatusDegraded),
			res("c", freshness.StatusActive),
			res("d", freshness.StatusDead),
			res("e", freshness.StatusActive),
		},
	}
}

func ids(resources []catalog.Resource) []string {
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.ID)
	}
	return out
}

func TestGatherReturnsActiveOnly(t *testing.T) {
	t.Parallel()

	checker := &mapChecker{}
	s := New(memory.New(sampleCatalog()), checker, Config{}, nil)

	got, err := s.Gather(context.Background(), "", false)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "e"}, ids(got))
	require.Zero(t, checker.calls, "verification is opt-in")
}

func TestGatherUnknownDomain(t *testing.T) {
	t.Parallel()

	s := New(memory.New(sampleCatalog()), nil, Config{}, nil)
	_, err := s.Gather(context.Background(), "quantum-basics", false)
	require.ErrorIs(t, err, apperr.ErrNoResources)

	appErr := apperr.From(err)
	require.False(t, appErr.RetryAllowed)
	require.Equal(t, 404, appErr.HTTPStatus)
}

func TestGatherLoadFailureIsRetryable(t *testing.T) {
	t.Parallel()

	cause := errors.New("s3 timeout")
	s := New(errLoader{err: cause}, nil, Config{}, nil)
	_, err := s.Gather(context.Background(), catalog.DefaultDomain, false)
	require.ErrorIs(t, err, apperr.ErrResourceLoad)
	require.ErrorIs(t, err, cause)
	require.True(t, apperr.From(err).RetryAllowed)
	require.Equal(t, 503, apperr.From(err).HTTPStatus)
}

func TestGatherMissingCatalogMeansNoResources(t *testing.T) {
	t.Parallel()

	s := New(memory.New(nil), nil, Config{}, nil)
	_, err := s.Gather(context.Background(), "", false)
	require.ErrorIs(t, err, apperr.ErrNoResources)
}

func TestGatherSpotCheckExcludesFailuresAndKeepsErrors(t *testing.T) {
	t.Parallel()

	checker := &mapChecker{
		live:   map[string]bool{"https://example.com/a": true},
		errs:   map[string]error{"https://example.com/c": errors.New("weird")},
		panics: map[string]bool{"https://example.com/e": true},
	}
	s := New(memory.New(sampleCatalog()), checker, Config{}, nil)

	got, err := s.Gather(context.Background(), catalog.DefaultDomain, true)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "e"}, ids(got))
	require.Equal(t, 3, checker.calls)
}

func TestGatherSpotCheckExclusion(t *testing.T) {
	t.Parallel()

	checker := &mapChecker{live: map[string]bool{
		"https://example.com/a": true,
		"https://example.com/e": true,
	}}
	s := New(memory.New(sampleCatalog()), checker, Config{}, nil)

	got, err := s.Gather(context.Background(), catalog.DefaultDomain, true)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "e"}, ids(got))
}

func TestGatherAllExcludedIsNoResources(t *testing.T) {
	t.Parallel()

	s := New(memory.New(sampleCatalog()), &mapChecker{}, Config{}, nil)
	_, err := s.Gather(context.Background(), catalog.DefaultDomain, true)
	require.ErrorIs(t, err, apperr.ErrNoResources)
}

func TestGatherWarnsAboveThreshold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		live      []string
		threshold float64
		wantWarn  bool
	}{
		{name: "one of three excluded", live: []string{"a", "c"}, wantWarn: true},
		{name: "none excluded", live: []string{"a", "c", "e"}, wantWarn: false},
		{name: "below a raised threshold", live: []string{"a", "c"}, threshold: 0.5, wantWarn: false},
		{name: "any exclusion", live: []string{"a", "c"}, threshold: WarnOnAnyExclusion, wantWarn: true},
		{name: "any exclusion but none excluded", live: []string{"a", "c", "e"}, threshold: WarnOnAnyExclusion, wantWarn: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.WarnLevel)
			live := map[string]bool{}
			for _, id := range tc.live {
				live["https://example.com/"+id] = true
			}
			s := New(memory.New(sampleCatalog()), &mapChecker{live: live}, Config{WarnThreshold: tc.threshold}, zap.New(core))

			_, err := s.Gather(context.Background(), catalog.DefaultDomain, true)
			require.NoError(t, err)
			warned := logs.FilterMessage("high spot check failure rate").Len() > 0
			require.Equal(t, tc.wantWarn, warned)
		})
	}
}

func TestGatherNeverMutatesStatus(t *testing.T) {
	t.Parallel()

	store := memory.New(sampleCatalog())
	s := New(store, &mapChecker{}, Config{}, nil)
	_, _ = s.Gather(context.Background(), catalog.DefaultDomain, true)

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleCatalog().Resources, snapshot.Resources)
	require.Zero(t, store.Saves())
}

func TestGatherFromSnapshot(t *testing.T) {
	t.Parallel()

	s := New(errLoader{err: errors.New("unused")}, nil, Config{}, nil)
	got, err := s.GatherFrom(context.Background(), sampleCatalog(), "", true)
	require.NoError(t, err)
	require.Len(t, got, 3, "nil checker skips verification")
}

func TestResourceLookup(t *testing.T) {
	t.Parallel()

	s := New(memory.New(sampleCatalog()), nil, Config{}, nil)

	r, err := s.Resource(context.Background(), "", "d")
	require.NoError(t, err)
	require.Equal(t, freshness.StatusDead, r.Status)

	_, err = s.Resource(context.Background(), "", "zzz")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Resource(context.Background(), "", "")
	require.ErrorIs(t, err, apperr.ErrValidation)
}
