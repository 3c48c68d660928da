// Package catalog holds the curated resource directory and its JSON codec.
// Fields the service does not interpret are carried through untouched so a
// curator pass never drops data owned by the ingestion process.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/clew-freshness/internal/freshness"
)

// DefaultDomain is assumed when a catalog document does not name one.
const DefaultDomain = "ai-foundations"

// Resource is one catalog entry.
type Resource struct {
	ID           string
	URL          string
	Status       freshness.Status
	LastVerified time.Time

	urlKey string
	extra  map[string]json.RawMessage
}

// Catalog is the ordered resource set plus dataset-level metadata.
type Catalog struct {
	Domain      string
	Version     string
	LastCurated time.Time
	Resources   []Resource

	extra map[string]json.RawMessage
}

// Extra returns a passthrough field by name.
func (r Resource) Extra(name string) (json.RawMessage, bool) {
	v, ok := r.extra[name]
	return v, ok
}

// Clone returns a deep copy so callers can mutate the result freely.
func (c *Catalog) Clone() *Catalog {
	if c == nil {
		return nil
	}
	out := *c
	out.extra = cloneRaw(c.extra)
	out.Resources = make([]Resource, len(c.Resources))
	for i, r := range c.Resources {
		r.extra = cloneRaw(r.extra)
		out.Resources[i] = r
	}
	return &out
}

// ActiveResources returns resources with status active when domain matches
// the catalog's domain. Any other domain yields an empty result.
func (c *Catalog) ActiveResources(domain string) []Resource {
	if c == nil || domain != c.domain() {
		return nil
	}
	var out []Resource
	for _, r := range c.Resources {
		if r.Status == freshness.StatusActive {
			out = append(out, r)
		}
	}
	return out
}

// Resource looks up a single entry by id.
func (c *Catalog) Resource(id string) (Resource, bool) {
	if c == nil {
		return Resource{}, false
	}
	for _, r := range c.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

func (c *Catalog) domain() string {
	if c.Domain == "" {
		return DefaultDomain
	}
	return c.Domain
}

// Known document keys. Everything else goes to extra.
const (
	keyDomain       = "domain"
	keyVersion      = "version"
	keyLastCurated  = "last_curated"
	keyResources    = "resources"
	keyID           = "id"
	keyResourceURL  = "resource_url"
	keyURL          = "url"
	keyStatus       = "status"
	keyLastVerified = "last_verified"
)

// Decode parses a catalog document.
func Decode(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// Encode renders the catalog as indented JSON.
func Encode(c *Catalog) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent catalog: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Catalog{}
	if err := takeString(fields, keyDomain, &c.Domain); err != nil {
		return err
	}
	if err := takeString(fields, keyVersion, &c.Version); err != nil {
		return err
	}
	if err := takeTime(fields, keyLastCurated, &c.LastCurated); err != nil {
		return err
	}
	if raw, ok := fields[keyResources]; ok {
		delete(fields, keyResources)
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &c.Resources); err != nil {
				return fmt.Errorf("resources: %w", err)
			}
		}
	}
	if len(fields) > 0 {
		c.extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Catalog) MarshalJSON() ([]byte, error) {
	fields := cloneRaw(c.extra)
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	if err := putString(fields, keyDomain, c.Domain); err != nil {
		return nil, err
	}
	if err := putString(fields, keyVersion, c.Version); err != nil {
		return nil, err
	}
	if err := putTime(fields, keyLastCurated, c.LastCurated); err != nil {
		return nil, err
	}
	resources := c.Resources
	if resources == nil {
		resources = []Resource{}
	}
	raw, err := json.Marshal(resources)
	if err != nil {
		return nil, err
	}
	fields[keyResources] = raw
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = Resource{}
	if err := takeString(fields, keyID, &r.ID); err != nil {
		return err
	}
	rawResourceURL, hadResourceURL := fields[keyResourceURL]
	if err := takeString(fields, keyResourceURL, &r.URL); err != nil {
		return err
	}
	if _, ok := fields[keyURL]; ok && r.URL == "" {
		if err := takeString(fields, keyURL, &r.URL); err != nil {
			return err
		}
		r.urlKey = keyURL
		if hadResourceURL {
			// The blank primary key still round-trips untouched.
			fields[keyResourceURL] = rawResourceURL
		}
	}
	var status string
	if err := takeString(fields, keyStatus, &status); err != nil {
		return err
	}
	parsed, err := freshness.Parse(status)
	if err != nil {
		return fmt.Errorf("resource %q: %w", r.ID, err)
	}
	r.Status = parsed
	if err := takeTime(fields, keyLastVerified, &r.LastVerified); err != nil {
		return fmt.Errorf("resource %q: %w", r.ID, err)
	}
	if len(fields) > 0 {
		r.extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Resource) MarshalJSON() ([]byte, error) {
	fields := cloneRaw(r.extra)
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	if err := putString(fields, keyID, r.ID); err != nil {
		return nil, err
	}
	urlKey := r.urlKey
	if urlKey == "" {
		urlKey = keyResourceURL
	}
	if err := putString(fields, urlKey, r.URL); err != nil {
		return nil, err
	}
	status := r.Status
	if status == "" {
		status = freshness.StatusActive
	}
	if err := putString(fields, keyStatus, string(status)); err != nil {
		return nil, err
	}
	if err := putTime(fields, keyLastVerified, r.LastVerified); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func takeString(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func takeTime(fields map[string]json.RawMessage, key string, dst *time.Time) error {
	var s string
	if err := takeString(fields, key, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = t
	return nil
}

// parseTimestamp accepts RFC 3339 plus the offset-less ISO-8601 form some
// ingestion tools emit, which is read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func putString(fields map[string]json.RawMessage, key, value string) error {
	if value == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	fields[key] = raw
	return nil
}

func putTime(fields map[string]json.RawMessage, key string, value time.Time) error {
	if value.IsZero() {
		return nil
	}
	return putString(fields, key, value.UTC().Format(time.RFC3339Nano))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneRaw(src map[string]json.RawMessage) map[string]json.RawMessage {
	if src == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(src))
	for k, v := range src {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
