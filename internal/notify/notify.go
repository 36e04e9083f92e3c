// Package notify carries discrete state-change notifications from the voice
// core to the companion status UI.
//
// The core only ever talks to the [Notifier] interface and emits at the exact
// transition points of the interaction state machine: one event per state
// change, one speech-detection event per classified frame while recording,
// one event per completed transcription, and one per surfaced error. The
// transport is an implementation detail: [Nop] discards everything and
// [Socket] broadcasts newline-delimited JSON over a Unix domain socket, which
// is the wire format the status bar consumes.
package notify

// State enumerates the interaction states visible to the status UI.
type State string

const (
	StateIdle         State = "idle"
	StateSpeaking     State = "speaking"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

// StateChange describes one transition of the interaction state machine.
type StateChange struct {
	// State is the state being entered.
	State State

	// Text is the utterance being spoken aloud. Only set for StateSpeaking.
	Text string

	// Mode is the capture mode ("vad" or "ptt"). Only set for
	// StateRecording.
	Mode string

	// SilenceMode is the active silence policy name. Only set for
	// StateRecording in vad mode.
	SilenceMode string
}

// Notifier receives state-change notifications. Implementations must be safe
// for concurrent use and must never block the caller on a slow consumer.
type Notifier interface {
	// StateChanged reports that the interaction state machine entered a new
	// state.
	StateChanged(change StateChange)

	// SpeechDetected reports one voice-activity classification result while
	// recording.
	SpeechDetected(detected bool)

	// Transcription reports the final transcribed text of an interaction.
	Transcription(text string)

	// Failure reports a surfaced error. Recoverable failures leave the
	// session usable for the next interaction.
	Failure(message string, recoverable bool)
}

// Nop is a Notifier that discards all notifications. It is the default when
// no status UI socket is configured.
type Nop struct{}

// Compile-time interface assertion.
var _ Notifier = Nop{}

func (Nop) StateChanged(StateChange)  {}
func (Nop) SpeechDetected(bool)       {}
func (Nop) Transcription(string)      {}
func (Nop) Failure(string, bool)      {}
