// Package sessionlock implements a durable, cross-process exclusive lock over
// microphone ownership.
//
// The lock is a single JSON record {pid, sessionId, startedAt} held in a
// [Store]. Acquisition is non-blocking: it either succeeds, reports Busy with
// the live owner's identity, or fails with an I/O error. A record whose owner
// process no longer exists is reclaimed transparently during the next
// acquire. The record is only ever mutated through the store's atomic
// create/remove primitives — there is no read-modify-write on the lock.
//
// The mutex is session-scoped, not call-scoped: a process acquires once and
// releases at shutdown.
package sessionlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/voicelayer/voicelayer/internal/proc"
)

// Lock is the durable record representing exclusive microphone ownership.
// The JSON field names are part of the on-disk contract; status tooling reads
// the record file directly.
type Lock struct {
	// PID is the owning process ID.
	PID int `json:"pid"`

	// SessionID is a human-readable session tag plus the owning PID,
	// e.g. "mcp-12345".
	SessionID string `json:"sessionId"`

	// StartedAt is the ISO-8601 creation timestamp.
	StartedAt time.Time `json:"startedAt"`
}

// BusyError reports that the lock is held by a live other owner. It carries
// the existing lock verbatim so callers can render "who owns it and since
// when".
type BusyError struct {
	Owner Lock
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	return fmt.Sprintf("microphone is held by session %q (pid %d) since %s",
		e.Owner.SessionID, e.Owner.PID, e.Owner.StartedAt.Format(time.RFC3339))
}

// Holder classifies the result of [Mutex.Status].
type Holder int

const (
	// Free means no valid lock record exists.
	Free Holder = iota

	// HeldByUs means the calling process owns the lock.
	HeldByUs

	// HeldByOther means a different live process owns the lock.
	HeldByOther
)

// Option is a functional option for configuring a Mutex.
type Option func(*Mutex)

// WithPID overrides the calling process ID. Tests use this to simulate
// distinct process identities against a shared store.
func WithPID(pid int) Option {
	return func(m *Mutex) { m.pid = pid }
}

// WithLiveness overrides the process liveness probe. Tests use this to make
// any recorded owner appear alive or dead on demand.
func WithLiveness(fn func(pid int) proc.Status) Option {
	return func(m *Mutex) { m.liveness = fn }
}

// Mutex is a cross-process exclusive lock backed by a [Store]. All methods
// are safe to call from a single process; cross-process safety comes from the
// store's atomic create semantics.
type Mutex struct {
	store    Store
	pid      int
	liveness func(pid int) proc.Status
}

// New creates a Mutex over the given store. By default the calling process's
// real PID and the real liveness probe are used.
func New(store Store, opts ...Option) *Mutex {
	m := &Mutex{
		store:    store,
		pid:      os.Getpid(),
		liveness: proc.Liveness,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire takes the lock for this process under the given session label. The
// recorded session ID is "<label>-<pid>".
//
// If a record already exists: a dead owner is reclaimed silently; the calling
// process's own record makes Acquire idempotent (the existing lock is
// returned without a rewrite); a live foreign owner yields a *BusyError. If
// the atomic create loses a race against a concurrent acquirer, that too is
// reported as *BusyError — never retried, never overwritten.
//
// Any other storage failure is returned as a wrapped I/O error and leaves no
// partial record.
func (m *Mutex) Acquire(sessionLabel string) (Lock, error) {
	if existing, ok, err := m.readValid(); err != nil {
		return Lock{}, err
	} else if ok {
		if existing.PID == m.pid {
			return existing, nil
		}
		return Lock{}, &BusyError{Owner: existing}
	}

	lock := Lock{
		PID:       m.pid,
		SessionID: fmt.Sprintf("%s-%d", sessionLabel, m.pid),
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return Lock{}, fmt.Errorf("sessionlock: encode record: %w", err)
	}

	switch err := m.store.Create(data); {
	case err == nil:
		slog.Info("acquired microphone lock", "session_id", lock.SessionID, "pid", lock.PID)
		return lock, nil
	case errors.Is(err, ErrExists):
		// Lost the create race. Report the winner's identity on a best-effort
		// basis; if the record vanished again in the meantime the BusyError
		// carries a zero owner.
		var busy BusyError
		if data, rerr := m.store.Read(); rerr == nil {
			_ = json.Unmarshal(data, &busy.Owner)
		}
		return Lock{}, &busy
	default:
		return Lock{}, err
	}
}

// Release deletes the record only when it is owned by the calling process.
// A record owned by someone else is left untouched. Releasing when no record
// exists is a no-op.
func (m *Mutex) Release() error {
	data, err := m.store.Read()
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err == nil && lock.PID != m.pid {
		slog.Debug("not releasing foreign lock", "owner_pid", lock.PID, "owner_session", lock.SessionID)
		return nil
	}
	if err := m.store.Remove(); err != nil {
		return err
	}
	slog.Info("released microphone lock", "pid", m.pid)
	return nil
}

// Status reports who currently holds the lock. Stale records (dead owner)
// report Free but are not reclaimed here; reclamation happens in Acquire.
func (m *Mutex) Status() (Holder, Lock, error) {
	lock, ok, err := m.peekValid()
	if err != nil {
		return Free, Lock{}, err
	}
	if !ok {
		return Free, Lock{}, nil
	}
	if lock.PID == m.pid {
		return HeldByUs, lock, nil
	}
	return HeldByOther, lock, nil
}

// readValid returns the current record after reclaiming a stale one. The
// second return is false when no valid record remains.
func (m *Mutex) readValid() (Lock, bool, error) {
	data, err := m.store.Read()
	if errors.Is(err, ErrNotExist) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		// An unparseable record has no knowable owner; reclaim it so a
		// corrupt write can never wedge the microphone permanently.
		slog.Warn("reclaiming corrupt microphone lock record", "error", err)
		if rerr := m.store.Remove(); rerr != nil {
			return Lock{}, false, rerr
		}
		return Lock{}, false, nil
	}

	if !m.liveness(lock.PID).Exists() {
		slog.Info("reclaiming stale microphone lock",
			"owner_pid", lock.PID, "owner_session", lock.SessionID)
		if rerr := m.store.Remove(); rerr != nil {
			return Lock{}, false, rerr
		}
		return Lock{}, false, nil
	}
	return lock, true, nil
}

// peekValid is readValid without the reclaim side effect.
func (m *Mutex) peekValid() (Lock, bool, error) {
	data, err := m.store.Read()
	if errors.Is(err, ErrNotExist) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return Lock{}, false, nil
	}
	if !m.liveness(lock.PID).Exists() {
		return Lock{}, false, nil
	}
	return lock, true, nil
}
