package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store whose backing document does not exist.
var ErrNotFound = errors.New("catalog not found")

// Store reads and replaces the catalog document as a whole.
type Store interface {
	Load(ctx context.Context) (*Catalog, error)
	Save(ctx context.Context, c *Catalog) error
}
