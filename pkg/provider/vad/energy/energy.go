// Package energy provides an RMS-energy-backed VAD engine.
//
// Each frame's root-mean-square level is smoothed with an exponential moving
// average and mapped onto [0, 1) through a soft transfer curve centred on a
// configurable pivot level. The smoothing history is the session's hidden
// recurrent state: a loud previous capture would bias the first frames of the
// next one, which is why the recording pipeline resets the session before
// every capture.
//
// The engine needs no model files or subprocesses, making it the default
// gate. Deployments with a neural classifier implement the same vad.Engine
// contract and swap it in via configuration.
//
// Usage:
//
//	eng := energy.New(energy.WithPivotRMS(300))
//	sess, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30, SpeechThreshold: 0.5})
//	prob, err := sess.Classify(frame)
package energy

import (
	"fmt"

	"github.com/voicelayer/voicelayer/pkg/audio"
	"github.com/voicelayer/voicelayer/pkg/provider/vad"
)

const (
	// defaultPivotRMS is the RMS level (in 16-bit PCM units) at which the
	// speech probability crosses 0.5. The maximum possible value for 16-bit
	// audio is 32 767; 300 corresponds to near-silence.
	defaultPivotRMS = 300.0

	// defaultSmoothing is the EMA weight given to the current frame. Higher
	// values react faster; lower values ride out single-frame spikes.
	defaultSmoothing = 0.7
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithPivotRMS sets the RMS level at which the reported speech probability
// equals 0.5. Defaults to 300.
func WithPivotRMS(pivot float64) Option {
	return func(e *Engine) {
		if pivot > 0 {
			e.pivot = pivot
		}
	}
}

// WithSmoothing sets the exponential-moving-average weight applied to the
// current frame's RMS, in (0, 1]. 1 disables smoothing. Defaults to 0.7.
func WithSmoothing(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// Engine implements vad.Engine using RMS energy. It is safe for concurrent
// use; each session is independent.
type Engine struct {
	pivot float64
	alpha float64
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an energy Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{pivot: defaultPivotRMS, alpha: defaultSmoothing}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a session for the given configuration. The configuration
// must describe a positive sample rate and frame size and a threshold in
// [0, 1].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %dms is invalid", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %f is out of range [0, 1]", cfg.SpeechThreshold)
	}
	return &session{
		frameBytes: cfg.FrameBytes(),
		pivot:      e.pivot,
		alpha:      e.alpha,
	}, nil
}

// session is a live energy-VAD session. Not safe for concurrent use.
type session struct {
	frameBytes int
	pivot      float64
	alpha      float64

	// smoothed is the EMA of frame RMS levels — the hidden recurrent state.
	smoothed    float64
	initialised bool
	closed      bool
}

// Compile-time interface assertion.
var _ vad.SessionHandle = (*session)(nil)

// Classify returns the smoothed speech probability for one exact-size frame.
func (s *session) Classify(frame []byte) (float64, error) {
	if s.closed {
		return 0, fmt.Errorf("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return 0, fmt.Errorf("energy: frame is %d bytes, want exactly %d", len(frame), s.frameBytes)
	}

	rms := audio.RMS(frame)
	if !s.initialised {
		s.smoothed = rms
		s.initialised = true
	} else {
		s.smoothed = s.alpha*rms + (1-s.alpha)*s.smoothed
	}

	// Soft transfer: 0 at silence, 0.5 at the pivot level, asymptotically 1.
	return s.smoothed / (s.smoothed + s.pivot), nil
}

// Reset clears the smoothing history.
func (s *session) Reset() {
	s.smoothed = 0
	s.initialised = false
}

// Close marks the session closed. Calling Close more than once returns nil.
func (s *session) Close() error {
	s.closed = true
	return nil
}
