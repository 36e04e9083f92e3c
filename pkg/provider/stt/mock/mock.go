// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script availability and transcription results and to
// inspect the audio that was submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    NameVal:      "fake",
//	    AvailableVal: true,
//	    Result:       &stt.Result{Text: "hello", Backend: "fake"},
//	}
//	res, _ := p.Transcribe(ctx, pcm, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte

	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// NameVal is returned by Name. Defaults to "mock".
	NameVal string

	// AvailableVal is returned by Available.
	AvailableVal bool

	// Result is returned by Transcribe when TranscribeErr is nil. If nil, a
	// zero Result is returned.
	Result *stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// AvailableCallCount is the number of times Available was called.
	AvailableCallCount int
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Name returns NameVal, or "mock" when unset.
func (p *Provider) Name() string {
	if p.NameVal == "" {
		return "mock"
	}
	return p.NameVal
}

// Available records the call and returns AvailableVal.
func (p *Provider) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AvailableCallCount++
	return p.AvailableVal
}

// Transcribe records the call and returns Result, TranscribeErr.
func (p *Provider) Transcribe(_ context.Context, pcm []byte, sampleRate int) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{PCM: cp, SampleRate: sampleRate})
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if p.Result != nil {
		res := *p.Result
		return &res, nil
	}
	return &stt.Result{Backend: p.Name()}, nil
}

// ResetCalls clears all recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.AvailableCallCount = 0
}
