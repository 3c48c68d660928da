// Package freshness models the lifecycle of a catalog resource as a small
// one-directional state machine driven by liveness checks.
package freshness

import (
	"fmt"
	"strings"
)

// Status is the freshness state of a catalog resource.
type Status string

// Degradation order: active → degraded → stale → dead.
const (
	StatusActive   Status = "active"
	StatusDegraded Status = "degraded"
	StatusStale    Status = "stale"
	StatusDead     Status = "dead"
)

// All lists every status in degradation order.
var All = []Status{StatusActive, StatusDegraded, StatusStale, StatusDead}

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDegraded, StatusStale, StatusDead:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// Parse converts a stored status string. An empty value is treated as
// active, the state every resource starts in.
func Parse(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return StatusActive, nil
	}
	if !s.Valid() {
		return "", fmt.Errorf("unknown freshness status %q", raw)
	}
	return s, nil
}

// Next returns the status that follows prev given a fresh liveness verdict.
// A live check always resets to active; a failed check moves one step down
// the chain, and dead absorbs further failures.
func Next(prev Status, live bool) Status {
	if live {
		return StatusActive
	}
	switch prev {
	case StatusActive:
		return StatusDegraded
	case StatusDegraded:
		return StatusStale
	default:
		return StatusDead
	}
}
