// Package proc reports whether an arbitrary process ID is still alive.
//
// The check is signal-based: delivering signal 0 probes for existence without
// affecting the target. The permission-denied case is deliberately reported
// as its own status — on a multi-user host EPERM means "a live process owned
// by someone else", and callers that reclaim resources must not treat it as
// dead.
package proc

import (
	"errors"
	"os"
	"syscall"
)

// Status classifies the outcome of a liveness probe.
type Status int

const (
	// StatusDead means no process with the given PID exists.
	StatusDead Status = iota

	// StatusAlive means the process exists and the caller may signal it.
	StatusAlive

	// StatusAliveForeign means a process with the given PID exists but the
	// caller lacks permission to signal it (typically another user's
	// process). For reclamation purposes this counts as alive.
	StatusAliveForeign
)

// String returns a human-readable label for s.
func (s Status) String() string {
	switch s {
	case StatusDead:
		return "dead"
	case StatusAlive:
		return "alive"
	case StatusAliveForeign:
		return "alive-foreign"
	}
	return "unknown"
}

// Exists reports whether s denotes a live process, foreign or not.
func (s Status) Exists() bool {
	return s == StatusAlive || s == StatusAliveForeign
}

// Liveness probes the process with the given PID. A non-positive PID is
// reported dead — PID 0 and negative values address process groups, never a
// single recorded owner.
func Liveness(pid int) Status {
	if pid <= 0 {
		return StatusDead
	}

	// On Unix FindProcess always succeeds; the probe happens at signal time.
	p, err := os.FindProcess(pid)
	if err != nil {
		return StatusDead
	}

	err = p.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return StatusAlive
	case errors.Is(err, syscall.EPERM):
		return StatusAliveForeign
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return StatusDead
	default:
		// Unexpected errno: err on the side of not reclaiming.
		return StatusAliveForeign
	}
}
