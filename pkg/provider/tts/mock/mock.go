// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voicelayer/voicelayer/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. It scripts availability
// and the returned clip, and records every synthesized text.
type Provider struct {
	mu sync.Mutex

	// NameVal is returned by Name. Defaults to "mock".
	NameVal string

	// AvailableVal is returned by Available.
	AvailableVal bool

	// Clip is returned by Synthesize when SynthesizeErr is nil. If nil, an
	// empty clip is returned.
	Clip *tts.Clip

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeCalls records the text of every Synthesize call in order.
	SynthesizeCalls []string
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Name returns NameVal, or "mock" when unset.
func (p *Provider) Name() string {
	if p.NameVal == "" {
		return "mock"
	}
	return p.NameVal
}

// Available returns AvailableVal.
func (p *Provider) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AvailableVal
}

// Synthesize records the call and returns Clip, SynthesizeErr.
func (p *Provider) Synthesize(_ context.Context, text string) (*tts.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, text)
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	if p.Clip != nil {
		clip := *p.Clip
		return &clip, nil
	}
	return &tts.Clip{Format: "mp3"}, nil
}

// ResetCalls clears the recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
