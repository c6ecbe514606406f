// Package node manages the lifecycle of the local chain daemon.
//
// The manager never holds a handle to the daemon. Every decision re-reads the
// process table and probes the RPC endpoint, so a concurrent start and stop race
// on OS state; each step is idempotent and callers needing mutual exclusion must
// serialize above this package.
package node

import (
	"fmt"
	"time"
)

// State is the observable state of the daemon.
type State string

const (
	StateStopped     State = "stopped"
	StateStarting    State = "starting"
	StateHealthy     State = "healthy"
	StateUnreachable State = "unreachable"
)

// Status is one fresh observation.
type Status struct {
	State     State     `json:"state"`
	PIDs      []int     `json:"pids"`
	Healthy   bool      `json:"healthy"`
	Endpoint  string    `json:"endpoint"`
	CheckedAt time.Time `json:"checked_at"`
}

// Running reports whether any matching process exists.
func (s Status) Running() bool { return len(s.PIDs) > 0 }

// Stuck reports a process that exists but does not answer the health probe.
func (s Status) Stuck() bool { return s.Running() && !s.Healthy }

func (s Status) String() string {
	return fmt.Sprintf("%s pids=%v endpoint=%s", s.State, s.PIDs, s.Endpoint)
}
