package orchestrate

import (
	"fmt"

	"github.com/voicelayer/voicelayer/internal/sessionlock"
)

// Kind discriminates the result of one ask interaction.
type Kind string

const (
	// KindOk means the user spoke and the utterance was transcribed.
	KindOk Kind = "ok"

	// KindBusy means another live session owns the microphone. The caller
	// should fall back to a non-voice channel and tell the user who holds
	// the line.
	KindBusy Kind = "busy"

	// KindNoResponse means the user did not speak in time. A normal
	// outcome, not an error.
	KindNoResponse Kind = "no-response"

	// KindErr means the interaction failed; Code and Err carry detail.
	KindErr Kind = "error"
)

// Code classifies KindErr outcomes.
type Code string

const (
	// CodeCaptureDeviceUnavailable: the capture subprocess is missing or
	// cannot start. Fatal for this call, recoverable for the next.
	CodeCaptureDeviceUnavailable Code = "capture-device-unavailable"

	// CodeNoTranscriptionBackend: no backend passed availability probing
	// and none was force-selected.
	CodeNoTranscriptionBackend Code = "no-transcription-backend"

	// CodeBackendTranscriptionFailed: a selected backend errored during
	// transcription. The captured audio itself was fine.
	CodeBackendTranscriptionFailed Code = "backend-transcription-failed"

	// CodeIOFailure: the mutex or stop-signal storage failed. Treated as
	// fatal, since ownership correctness cannot be guaranteed once storage
	// is unreliable.
	CodeIOFailure Code = "io-failure"
)

// Outcome is the discriminated result of one ask interaction. Exactly the
// fields implied by Kind are set; the rest are zero.
type Outcome struct {
	// Kind discriminates the variant.
	Kind Kind

	// Text is the transcribed utterance. KindOk only.
	Text string

	// Backend names the transcription backend that produced Text. KindOk
	// only.
	Backend string

	// Owner is the current lock holder. KindBusy only.
	Owner sessionlock.Lock

	// Code classifies the failure. KindErr only.
	Code Code

	// Err is the underlying failure. KindErr only.
	Err error
}

// Ok builds a successful outcome.
func Ok(text, backend string) Outcome {
	return Outcome{Kind: KindOk, Text: text, Backend: backend}
}

// Busy builds a busy outcome carrying the owning lock verbatim.
func Busy(owner sessionlock.Lock) Outcome {
	return Outcome{Kind: KindBusy, Owner: owner}
}

// NoResponse builds the user-said-nothing outcome.
func NoResponse() Outcome {
	return Outcome{Kind: KindNoResponse}
}

// Failed builds an error outcome.
func Failed(code Code, err error) Outcome {
	return Outcome{Kind: KindErr, Code: code, Err: err}
}

// Message renders the outcome as a single user-facing line.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindOk:
		return o.Text
	case KindBusy:
		return fmt.Sprintf("microphone is in use by session %s (pid %d) since %s; reply in text instead",
			o.Owner.SessionID, o.Owner.PID, o.Owner.StartedAt.Format("15:04:05"))
	case KindNoResponse:
		return "no response (user did not speak)"
	default:
		return fmt.Sprintf("voice interaction failed (%s): %v", o.Code, o.Err)
	}
}
