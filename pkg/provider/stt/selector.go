package stt

import (
	"context"
	"fmt"
	"log/slog"
)

// Selector picks the transcription backend for each utterance. Backends are
// probed in registration order, which encodes the privacy-and-cost
// preference: local engines first, cloud engines last. An explicit override
// pins one backend by name and never falls back — if the pinned backend is
// unavailable the selection fails loudly rather than silently routing audio
// elsewhere.
type Selector struct {
	providers []Provider
	override  string
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithOverride pins selection to the named backend. Empty means no override.
func WithOverride(name string) SelectorOption {
	return func(s *Selector) { s.override = name }
}

// NewSelector creates a Selector over providers in preference order.
func NewSelector(providers []Provider, opts ...SelectorOption) *Selector {
	s := &Selector{providers: providers}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Providers returns the registered providers in preference order.
func (s *Selector) Providers() []Provider { return s.providers }

// Override returns the pinned backend name, or empty.
func (s *Selector) Override() string { return s.override }

// Select returns the backend to use for the next utterance.
//
// With an override set, the named backend is returned if and only if it is
// registered and available; otherwise the error names it explicitly. Without
// an override, the first available backend in preference order wins; if none
// is available the error is ErrNoBackend.
func (s *Selector) Select(ctx context.Context) (Provider, error) {
	if s.override != "" {
		for _, p := range s.providers {
			if p.Name() != s.override {
				continue
			}
			if !p.Available(ctx) {
				return nil, fmt.Errorf("requested backend %q is not available: %w", s.override, ErrNoBackend)
			}
			return p, nil
		}
		return nil, fmt.Errorf("requested backend %q is not registered: %w", s.override, ErrNoBackend)
	}

	for _, p := range s.providers {
		if p.Available(ctx) {
			return p, nil
		}
	}
	return nil, ErrNoBackend
}

// Transcribe selects a backend and runs one utterance through it. It logs
// which backend was chosen so backend routing is observable per interaction.
func (s *Selector) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	p, err := s.Select(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("transcription backend selected", "backend", p.Name())
	return p.Transcribe(ctx, pcm, sampleRate)
}
