// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider wraps one transcription engine — a local whisper.cpp server, the
// in-process whisper.cpp bindings, or the Deepgram cloud API — behind a
// uniform batch interface: one complete utterance in, one transcript out.
// Providers additionally report availability so the Selector can probe the
// preferred local backends before falling back to the cloud.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoBackend is returned by the Selector when no transcription backend is
// available. It means setup is required (install a local model or configure a
// cloud API key), not that transcription transiently failed.
var ErrNoBackend = errors.New("no transcription backend available")

// BackendError reports that a specific backend accepted an utterance but
// failed to transcribe it. The audio was fine; the engine was not.
type BackendError struct {
	// Backend is the name of the backend that failed.
	Backend string

	// Err is the underlying failure.
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %q transcription failed: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Result is one completed transcription.
type Result struct {
	// Text is the transcribed utterance, whitespace-trimmed. May be empty
	// when the engine heard nothing intelligible.
	Text string

	// Backend is the name of the provider that produced the text.
	Backend string

	// Elapsed is the wall-clock transcription time.
	Elapsed time.Duration
}

// Provider is the abstraction over any batch speech-to-text backend.
type Provider interface {
	// Name returns the stable backend identifier used for selection
	// overrides and logging (e.g. "whisper-server", "deepgram").
	Name() string

	// Available reports whether the backend can currently accept work. The
	// probe should be cheap: a health endpoint, a loaded model, a
	// configured credential. It must not transcribe anything.
	Available(ctx context.Context) bool

	// Transcribe submits one complete utterance of mono 16-bit
	// little-endian PCM at sampleRate and blocks until the transcript is
	// ready. Failures are returned as *BackendError.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error)
}
