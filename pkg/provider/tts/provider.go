// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider wraps one synthesis engine behind a batch interface: one prompt
// in, one encoded audio clip out. The reference backend is the local
// VoiceLayer TTS daemon (see the daemon subpackage), which performs zero-shot
// voice cloning against a reference recording; the clip it returns is played
// by the playback layer while the orchestrator waits.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Clip is one synthesized utterance.
type Clip struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Format is the payload encoding, e.g. "mp3" or "wav".
	Format string

	// Duration is the synthesis time reported by the backend, when known.
	Duration time.Duration
}

// Provider is the abstraction over any text-to-speech backend.
type Provider interface {
	// Name returns the stable backend identifier used for logging.
	Name() string

	// Available reports whether the backend can currently synthesize. The
	// probe must be cheap and must not synthesize anything.
	Available(ctx context.Context) bool

	// Synthesize converts text to speech and blocks until the clip is
	// ready. Empty or whitespace-only text is an error.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}
