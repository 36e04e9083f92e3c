// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier (an energy detector, a
// Silero-style neural model, or anything else that maps a raw audio chunk to
// a speech probability) and surfaces it as a stateful, per-capture session.
// Each session may carry hidden recurrent state across frames, so Reset must
// be called once per new capture to keep a previous capture's state from
// leaking into the next one's classification decisions.
//
// Classification is synchronous by design: Classify returns immediately with
// a probability, making it suitable for the per-frame recording loop that
// gates capture termination.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation explicitly documents thread safety.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to Classify.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. The
	// classifier's required input length is fixed; Classify returns an error
	// for frames of any other size. The caller owns exact-size framing — the
	// session never pads or truncates.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64
}

// FrameBytes returns the exact byte length of one frame of mono 16-bit PCM
// at this configuration.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// IsSpeech reports whether probability counts as speech under this
// configuration's threshold.
func (c Config) IsSpeech(probability float64) bool {
	return probability >= c.SpeechThreshold
}

// SessionHandle represents an active VAD session for a single capture. Each
// session maintains its own detection state; Reset clears it without closing
// the session.
type SessionHandle interface {
	// Classify analyses a single audio frame and returns its speech
	// probability in [0, 1]. The frame must be raw little-endian mono 16-bit
	// PCM of exactly Config.FrameBytes length. Returns an error if the frame
	// size is wrong or the engine fails internally.
	//
	// Classify is called synchronously in the recording loop; it must not
	// block.
	Classify(frame []byte) (float64, error)

	// Reset clears all accumulated detection state without closing the
	// session. Call once before every new capture.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent use: multiple goroutines may call NewSession simultaneously to
// create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources.
	NewSession(cfg Config) (SessionHandle, error)
}
