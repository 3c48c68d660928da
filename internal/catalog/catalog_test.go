package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/clew-freshness/internal/freshness"
)

const sampleDoc = `{
  "version": "2026.02",
  "domain": "ai-foundations",
  "last_curated": "2026-01-01T00:00:00Z",
  "owner": {"team": "curation"},
  "resources": [
    {
      "id": "fast-ai",
      "resource_url": "https://course.fast.ai",
      "status": "active",
      "last_verified": "2026-01-01T00:00:00Z",
      "title": "Practical Deep Learning",
      "tags": ["free", "video"]
    },
    {
      "id": "old-blog",
      "url": "https://example.com/blog",
      "status": "stale",
      "last_verified": "2025-12-01T10:00:00"
    },
    {
      "id": "new-entry",
      "resource_url": "https://example.org"
    }
  ]
}`

func TestDecodeKnownFields(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	require.Equal(t, "ai-foundations", c.Domain)
	require.Equal(t, "2026.02", c.Version)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), c.LastCurated)
	require.Len(t, c.Resources, 3)

	require.Equal(t, "https://course.fast.ai", c.Resources[0].URL)
	require.Equal(t, freshness.StatusActive, c.Resources[0].Status)
	require.Equal(t, "https://example.com/blog", c.Resources[1].URL)
	require.Equal(t, freshness.StatusStale, c.Resources[1].Status)
	require.Equal(t, time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC), c.Resources[1].LastVerified)
	require.Equal(t, freshness.StatusActive, c.Resources[2].Status, "missing status starts active")
	require.True(t, c.Resources[2].LastVerified.IsZero())

	title, ok := c.Resources[0].Extra("title")
	require.True(t, ok)
	require.JSONEq(t, `"Practical Deep Learning"`, string(title))
}

func TestEncodePreservesPassthroughFields(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	c.Resources[0].Status = freshness.StatusDegraded

	out, err := Encode(c)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, map[string]any{"team": "curation"}, doc["owner"])

	resources := doc["resources"].([]any)
	first := resources[0].(map[string]any)
	require.Equal(t, "degraded", first["status"])
	require.Equal(t, "Practical Deep Learning", first["title"])
	require.Equal(t, []any{"free", "video"}, first["tags"])

	second := resources[1].(map[string]any)
	require.Equal(t, "https://example.com/blog", second["url"], "original url key is kept")
	require.NotContains(t, second, "resource_url")
}

func TestEncodeKeepsBlankResourceURLBesideURL(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(`{"resources":[
		{"id":"x","resource_url":"","url":"https://x.io/a","status":"active"},
		{"id":"y","resource_url":null,"url":"https://x.io/b","status":"stale"}
	]}`))
	require.NoError(t, err)
	require.Equal(t, "https://x.io/a", c.Resources[0].URL)
	require.Equal(t, "https://x.io/b", c.Resources[1].URL)

	out, err := Encode(c)
	require.NoError(t, err)

	var doc struct {
		Resources []map[string]json.RawMessage `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Resources, 2)
	require.JSONEq(t, `""`, string(doc.Resources[0]["resource_url"]))
	require.JSONEq(t, `"https://x.io/a"`, string(doc.Resources[0]["url"]))
	require.JSONEq(t, `null`, string(doc.Resources[1]["resource_url"]))
	require.JSONEq(t, `"https://x.io/b"`, string(doc.Resources[1]["url"]))
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"resources":[{"id":"x","resource_url":"https://x.io","status":"archived"}]}`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"resources": "nope"}`))
	require.Error(t, err)
	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestActiveResourcesFiltersByDomainAndStatus(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)

	active := c.ActiveResources("ai-foundations")
	require.Len(t, active, 2)
	require.Equal(t, "fast-ai", active[0].ID)
	require.Equal(t, "new-entry", active[1].ID)

	require.Empty(t, c.ActiveResources("quantum"))
}

func TestActiveResourcesDefaultDomain(t *testing.T) {
	t.Parallel()

	c := &Catalog{Resources: []Resource{{ID: "a", Status: freshness.StatusActive}}}
	require.Len(t, c.ActiveResources(DefaultDomain), 1)
}

func TestResourceLookup(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)

	r, ok := c.Resource("old-blog")
	require.True(t, ok)
	require.Equal(t, freshness.StatusStale, r.Status)

	_, ok = c.Resource("missing")
	require.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)

	cp := c.Clone()
	cp.Resources[0].Status = freshness.StatusDead
	cp.Resources[0].extra["title"] = json.RawMessage(`"changed"`)

	require.Equal(t, freshness.StatusActive, c.Resources[0].Status)
	title, _ := c.Resources[0].Extra("title")
	require.JSONEq(t, `"Practical Deep Learning"`, string(title))
}
