// Package stopsignal implements the durable out-of-band request to end the
// current audio capture or playback.
//
// The signal is pure presence/absence: any process (or a human running touch
// against the well-known path) may raise it, and the capturing process polls
// it once per audio frame. Fired never consumes — consumers that want
// consume-once semantics call Clear explicitly right after observing true, so
// a caller that merely polls cannot erase the signal for a different
// consumer.
package stopsignal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Signal is a durable, polled boolean flag shared across processes.
type Signal interface {
	// Raise sets the flag. Raising an already-raised signal is a no-op.
	Raise() error

	// Fired reports whether the flag is currently set. It never clears the
	// flag.
	Fired() (bool, error)

	// Clear unsets the flag. Clearing an absent signal is a no-op.
	Clear() error
}

// Consume reports whether s has fired and, if so, clears it in the same step.
// This is the check-then-clear pattern the recording pipeline uses: only one
// consumer exists per capture, so observing the signal also retires it.
func Consume(s Signal) (bool, error) {
	fired, err := s.Fired()
	if err != nil || !fired {
		return false, err
	}
	if err := s.Clear(); err != nil {
		return true, err
	}
	return true, nil
}

// File is a Signal whose mere file existence is the flag. Touching the path
// from a shell is a valid way to raise it.
type File struct {
	path string
}

// Compile-time interface assertion.
var _ Signal = (*File)(nil)

// NewFile creates a file-backed Signal at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file path backing this signal.
func (f *File) Path() string { return f.path }

// Raise creates the signal file. The parent directory is created if missing.
func (f *File) Raise() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("stopsignal: create directory: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("stopsignal: raise: %w", err)
	}
	return file.Close()
}

// Fired reports whether the signal file exists.
func (f *File) Fired() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stopsignal: stat: %w", err)
}

// Clear removes the signal file. An absent file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stopsignal: clear: %w", err)
	}
	return nil
}

// Mem is an in-memory Signal for tests. It is safe for concurrent use.
type Mem struct {
	mu    sync.Mutex
	fired bool

	// Err, if non-nil, is returned by every method. Used to simulate
	// storage failures.
	Err error
}

// Compile-time interface assertion.
var _ Signal = (*Mem)(nil)

// Raise sets the flag.
func (m *Mem) Raise() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.fired = true
	return nil
}

// Fired reports the flag without clearing it.
func (m *Mem) Fired() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.fired, nil
}

// Clear unsets the flag.
func (m *Mem) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.fired = false
	return nil
}
