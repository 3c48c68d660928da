// Package runlog keeps the history of curator job results.
package runlog

import (
	"context"
	"sync"

	"github.com/JakeFAU/clew-freshness/internal/curator"
)

// Store records curator results and lists the most recent ones.
type Store interface {
	RecordRun(ctx context.Context, result curator.Result) error
	Recent(ctx context.Context, limit int) ([]curator.Result, error)
	Close()
}

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 50

// Memory is a bounded in-process run history, newest last.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	runs     []curator.Result
}

// NewMemory returns a Memory keeping at most capacity results.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

// RecordRun appends result, evicting the oldest entry when full.
func (m *Memory) RecordRun(_ context.Context, result curator.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, result)
	if over := len(m.runs) - m.capacity; over > 0 {
		m.runs = append([]curator.Result(nil), m.runs[over:]...)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]curator.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]curator.Result, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() {}
