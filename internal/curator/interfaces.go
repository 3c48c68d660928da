package curator

import (
	"context"
	"time"
)

// Checker probes one URL. A non-nil error marks an unexpected failure; a
// dead URL is reported as (false, nil).
type Checker interface {
	Check(ctx context.Context, rawURL string) (bool, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes a digest of the written catalog.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder appends job results to a run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, result Result) error
}
