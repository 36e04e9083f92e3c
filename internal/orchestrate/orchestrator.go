// Package orchestrate sequences a complete voice interaction: own the
// microphone, discard stale stop signals, finish (or cut short) any audio
// that is still playing, speak the prompt, capture the reply, transcribe it.
//
// The state machine is Idle → Speaking → Recording → Transcribing → Idle,
// with a short path back to Idle when the user says nothing and an error exit
// from any state. The microphone mutex is acquired once per process — on the
// first ask — and released only at shutdown, because the lock protects the
// session, not the individual call.
package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voicelayer/voicelayer/internal/notify"
	"github.com/voicelayer/voicelayer/internal/observe"
	"github.com/voicelayer/voicelayer/internal/playback"
	"github.com/voicelayer/voicelayer/internal/record"
	"github.com/voicelayer/voicelayer/internal/sessionlock"
	"github.com/voicelayer/voicelayer/internal/stopsignal"
	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	"github.com/voicelayer/voicelayer/pkg/provider/tts"
)

// playbackStopPoll bounds how long a raised stop signal can go unobserved
// while the orchestrator waits on a playing clip.
const playbackStopPoll = 100 * time.Millisecond

// Recorder runs one microphone capture. *record.Recorder satisfies it.
type Recorder interface {
	Capture(ctx context.Context, opts record.Options) (*record.Result, error)
}

// Transcriber turns one captured utterance into text. *stt.Selector
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*stt.Result, error)
}

// AskOptions configures one ask interaction.
type AskOptions struct {
	// Prompt is spoken aloud before the microphone opens. Empty skips the
	// speaking phase.
	Prompt string

	// Record configures the capture phase.
	Record record.Options
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpeech wires a synthesis backend and player for the speaking phase.
// Without them, prompts are silently skipped and Say returns an error.
func WithSpeech(speech tts.Provider, player playback.Player) Option {
	return func(o *Orchestrator) {
		o.speech = speech
		o.player = player
	}
}

// WithNotifier wires the state-change notifier. Defaults to notify.Nop.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics wires the metrics instruments. Defaults to none.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator drives voice interactions. Safe for concurrent use; asks are
// serialized internally because there is only one microphone.
type Orchestrator struct {
	mutex        *sessionlock.Mutex
	stop         stopsignal.Signal
	recorder     Recorder
	transcriber  Transcriber
	sessionLabel string

	speech   tts.Provider
	player   playback.Player
	notifier notify.Notifier
	metrics  *observe.Metrics

	// interaction serializes whole asks and says: there is one microphone
	// and one speaker, so overlapping interactions would fight over both.
	interaction sync.Mutex

	mu       sync.Mutex
	acquired bool
	playing  playback.Handle
}

// New creates an Orchestrator. sessionLabel names this process's session in
// the lock record (e.g. "mcp").
func New(mutex *sessionlock.Mutex, stop stopsignal.Signal, recorder Recorder, transcriber Transcriber, sessionLabel string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mutex:        mutex,
		stop:         stop,
		recorder:     recorder,
		transcriber:  transcriber,
		sessionLabel: sessionLabel,
		notifier:     notify.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask runs one blocking voice interaction and returns its discriminated
// outcome. It never panics across the call boundary; every failure is an
// Outcome.
func (o *Orchestrator) Ask(ctx context.Context, opts AskOptions) Outcome {
	o.interaction.Lock()
	defer o.interaction.Unlock()

	out := o.ask(ctx, opts)

	if o.metrics != nil {
		o.metrics.RecordInteraction(ctx, string(out.Kind))
	}
	switch out.Kind {
	case KindOk:
		o.notifier.Transcription(out.Text)
	case KindBusy:
		o.notifier.Failure(out.Message(), true)
	case KindErr:
		o.notifier.Failure(out.Message(), out.Code != CodeIOFailure)
	}
	o.notifier.StateChanged(notify.StateChange{State: notify.StateIdle})
	return out
}

func (o *Orchestrator) ask(ctx context.Context, opts AskOptions) Outcome {
	// Own the microphone. First ask acquires; later asks see the held lock.
	if out, ok := o.ensureLock(); !ok {
		return out
	}

	// Discard any stop signal left over from a previous, already-ended
	// interaction; it must not cancel this one.
	if err := o.stop.Clear(); err != nil {
		return Failed(CodeIOFailure, err)
	}

	// Let audio that a prior Say started finish before speaking over it. A
	// stop raised during the wait cuts the old clip AND skips this ask.
	stopped, err := o.waitForPlaying(ctx)
	if err != nil {
		return Failed(CodeIOFailure, err)
	}
	if stopped {
		return NoResponse()
	}

	if opts.Prompt != "" {
		stopped, err := o.speakBlocking(ctx, opts.Prompt)
		if err != nil {
			// A missing voice must not cost the interaction; the prompt
			// text reaches the user through the assistant anyway.
			slog.Warn("prompt playback failed, continuing to capture", "error", err)
			o.notifier.Failure("prompt playback failed: "+err.Error(), true)
		}
		if stopped {
			return NoResponse()
		}
	}

	mode := "vad"
	if opts.Record.PressToTalk {
		mode = "ptt"
	}
	o.notifier.StateChanged(notify.StateChange{
		State:       notify.StateRecording,
		Mode:        mode,
		SilenceMode: string(opts.Record.SilenceMode),
	})

	if o.metrics != nil {
		o.metrics.ActiveCaptures.Add(ctx, 1)
	}
	captureStart := time.Now()
	res, err := o.recorder.Capture(ctx, opts.Record)
	if o.metrics != nil {
		o.metrics.ActiveCaptures.Add(ctx, -1)
	}
	if err != nil {
		if errors.Is(err, record.ErrDeviceUnavailable) {
			return Failed(CodeCaptureDeviceUnavailable, err)
		}
		return Failed(CodeIOFailure, err)
	}
	if o.metrics != nil {
		o.metrics.CaptureDuration.Record(ctx, time.Since(captureStart).Seconds(),
			metric.WithAttributes(attribute.String("reason", string(res.Reason))))
	}
	slog.Info("capture finished", "reason", res.Reason, "frames", res.Frames, "speech", res.SpeechObserved)

	if res.NoResponse() {
		return NoResponse()
	}

	o.notifier.StateChanged(notify.StateChange{State: notify.StateTranscribing})
	trStart := time.Now()
	tr, err := o.transcriber.Transcribe(ctx, res.PCM, res.SampleRate)
	if err != nil {
		if errors.Is(err, stt.ErrNoBackend) {
			return Failed(CodeNoTranscriptionBackend, err)
		}
		var be *stt.BackendError
		if errors.As(err, &be) {
			if o.metrics != nil {
				o.metrics.RecordProviderError(ctx, be.Backend, "transcription")
			}
			return Failed(CodeBackendTranscriptionFailed, err)
		}
		return Failed(CodeIOFailure, err)
	}
	if o.metrics != nil {
		o.metrics.TranscriptionDuration.Record(ctx, time.Since(trStart).Seconds(),
			metric.WithAttributes(attribute.String("backend", tr.Backend)))
	}

	return Ok(tr.Text, tr.Backend)
}

// Say synthesizes text and starts playing it without blocking. The next Ask
// waits for it. Requires WithSpeech.
func (o *Orchestrator) Say(ctx context.Context, text string) error {
	o.interaction.Lock()
	defer o.interaction.Unlock()
	return o.say(ctx, text)
}

func (o *Orchestrator) say(ctx context.Context, text string) error {
	if o.speech == nil || o.player == nil {
		return errors.New("orchestrate: no speech backend configured")
	}

	// Consecutive Says queue behind each other the same way Ask does.
	if _, err := o.waitForPlaying(ctx); err != nil {
		return err
	}

	o.notifier.StateChanged(notify.StateChange{State: notify.StateSpeaking, Text: text})
	synthStart := time.Now()
	clip, err := o.speech.Synthesize(ctx, text)
	if err != nil {
		o.notifier.StateChanged(notify.StateChange{State: notify.StateIdle})
		return err
	}
	if o.metrics != nil {
		o.metrics.SynthesisDuration.Record(ctx, time.Since(synthStart).Seconds())
	}

	h, err := o.player.Play(ctx, clip)
	if err != nil {
		o.notifier.StateChanged(notify.StateChange{State: notify.StateIdle})
		return err
	}
	o.mu.Lock()
	o.playing = h
	o.mu.Unlock()
	return nil
}

// Status reports who currently owns the microphone.
func (o *Orchestrator) Status() (sessionlock.Holder, sessionlock.Lock, error) {
	return o.mutex.Status()
}

// Close releases the microphone mutex and stops any in-flight playback. Call
// at process shutdown only; the lock is session-scoped.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	h := o.playing
	o.playing = nil
	acquired := o.acquired
	o.acquired = false
	o.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	if !acquired {
		return nil
	}
	return o.mutex.Release()
}

// ensureLock acquires the session mutex on the first call and verifies it on
// later ones. Returns (outcome, false) when the ask cannot proceed.
func (o *Orchestrator) ensureLock() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.acquired {
		return Outcome{}, true
	}

	lock, err := o.mutex.Acquire(o.sessionLabel)
	if err != nil {
		var busy *sessionlock.BusyError
		if errors.As(err, &busy) {
			return Busy(busy.Owner), false
		}
		return Failed(CodeIOFailure, err), false
	}
	slog.Info("microphone acquired", "session", lock.SessionID, "pid", lock.PID)
	o.acquired = true
	return Outcome{}, true
}

// speakBlocking speaks text and waits for the clip to finish, honoring the
// stop signal throughout. Returns stopped=true when a stop cut it short.
func (o *Orchestrator) speakBlocking(ctx context.Context, text string) (stopped bool, err error) {
	if o.speech == nil || o.player == nil {
		return false, nil
	}
	if err := o.say(ctx, text); err != nil {
		return false, err
	}
	return o.waitForPlaying(ctx)
}

// waitForPlaying blocks until the current playback handle (if any) finishes,
// polling the stop signal. A raised stop cuts the playback short, is
// consumed, and reports stopped=true.
func (o *Orchestrator) waitForPlaying(ctx context.Context) (stopped bool, err error) {
	o.mu.Lock()
	h := o.playing
	o.mu.Unlock()
	if h == nil {
		return false, nil
	}
	defer func() {
		o.mu.Lock()
		if o.playing == h {
			o.playing = nil
		}
		o.mu.Unlock()
	}()

	ticker := time.NewTicker(playbackStopPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return false, ctx.Err()
		case <-h.Done():
			if err := h.Err(); err != nil {
				slog.Warn("playback ended with error", "error", err)
			}
			return false, nil
		case <-ticker.C:
			fired, err := stopsignal.Consume(o.stop)
			if err != nil {
				return false, err
			}
			if fired {
				h.Stop()
				return true, nil
			}
		}
	}
}
