// Package record implements the microphone recording pipeline.
//
// The pipeline owns the capture subprocess, resamples its stream to the fixed
// 16 kHz target, frames it into exact-size chunks for the voice activity
// gate, and evaluates every stop condition once per frame in a fixed order:
// the explicit stop signal wins over the silence threshold, which wins over
// the pre-speech timeout. A wall-clock watchdog underneath all three
// guarantees termination even when the subprocess stalls. The capture
// subprocess is terminated on every exit path.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/voicelayer/voicelayer/internal/notify"
	"github.com/voicelayer/voicelayer/internal/stopsignal"
	"github.com/voicelayer/voicelayer/pkg/audio"
	"github.com/voicelayer/voicelayer/pkg/provider/vad"
)

// TargetSampleRate is the fixed sample rate delivered to the voice activity
// gate and the transcription backends, regardless of the capture device.
const TargetSampleRate = 16000

// stopPollInterval bounds how long a raised stop signal can go unobserved
// while the capture stream is not delivering data.
const stopPollInterval = 250 * time.Millisecond

// SilenceMode names a silence policy: how much grace the speaker gets after
// their last detected speech before the capture ends.
type SilenceMode string

const (
	// SilenceQuick ends capture half a second after speech stops. For
	// yes/no confirmations.
	SilenceQuick SilenceMode = "quick"

	// SilenceStandard is the default conversational grace period.
	SilenceStandard SilenceMode = "standard"

	// SilenceThoughtful tolerates long mid-sentence pauses.
	SilenceThoughtful SilenceMode = "thoughtful"
)

// IsValid reports whether m is a recognised silence mode.
func (m SilenceMode) IsValid() bool {
	switch m {
	case SilenceQuick, SilenceStandard, SilenceThoughtful:
		return true
	}
	return false
}

// GracePeriod returns the consecutive-silence duration after the last
// detected speech that ends the capture.
func (m SilenceMode) GracePeriod() time.Duration {
	switch m {
	case SilenceQuick:
		return 500 * time.Millisecond
	case SilenceThoughtful:
		return 3 * time.Second
	default:
		return 1500 * time.Millisecond
	}
}

// StopReason identifies which terminal condition ended a capture.
type StopReason string

const (
	// ReasonStopSignal means the out-of-band stop signal was observed.
	ReasonStopSignal StopReason = "stop-signal"

	// ReasonSilence means the configured run of consecutive silent frames
	// was reached after speech.
	ReasonSilence StopReason = "silence"

	// ReasonPreSpeechTimeout means no speech was observed within the
	// pre-speech window.
	ReasonPreSpeechTimeout StopReason = "pre-speech-timeout"

	// ReasonHardTimeout means the wall-clock watchdog fired.
	ReasonHardTimeout StopReason = "hard-timeout"

	// ReasonStreamEnded means the capture subprocess closed its stream.
	ReasonStreamEnded StopReason = "stream-ended"
)

// Options configures a single capture.
type Options struct {
	// HardTimeout is the wall-clock watchdog independent of chunk
	// processing. Zero applies the 120 s default.
	HardTimeout time.Duration

	// SilenceMode selects the grace period after last detected speech.
	// Ignored in press-to-talk mode. Empty applies SilenceStandard.
	SilenceMode SilenceMode

	// PreSpeechTimeout bounds how long the pipeline waits for speech to
	// begin before giving up with a no-response result. Disabled once
	// speech is observed. Zero applies the 15 s default. Ignored in
	// press-to-talk mode.
	PreSpeechTimeout time.Duration

	// PressToTalk bypasses the voice activity gate entirely: only the stop
	// signal and the hard timeout end the capture, and the result always
	// carries the captured bytes.
	PressToTalk bool
}

// withDefaults returns opts with zero values replaced by defaults.
func (o Options) withDefaults() Options {
	if o.HardTimeout <= 0 {
		o.HardTimeout = 120 * time.Second
	}
	if o.PreSpeechTimeout <= 0 {
		o.PreSpeechTimeout = 15 * time.Second
	}
	if o.SilenceMode == "" {
		o.SilenceMode = SilenceStandard
	}
	return o
}

// Result is the outcome of one capture.
type Result struct {
	// PCM is the captured mono 16-bit waveform at [TargetSampleRate],
	// including leading and trailing silence. Nil when no speech was ever
	// observed in voice-activity mode — the normal "user said nothing"
	// outcome, distinct from an error.
	PCM []byte

	// SampleRate is always TargetSampleRate; carried so downstream callers
	// need no implicit constant.
	SampleRate int

	// Reason is the terminal condition that ended the capture.
	Reason StopReason

	// SpeechObserved reports whether any frame was classified as speech.
	// Always false in press-to-talk mode, where no classification runs.
	SpeechObserved bool

	// Frames is the number of complete frames processed.
	Frames int
}

// NoResponse reports whether the capture ended without usable audio.
func (r *Result) NoResponse() bool { return r.PCM == nil }

// Config holds the recorder's fixed per-process parameters.
type Config struct {
	// FrameSizeMs is the gate's required frame duration. Zero applies the
	// 30 ms default.
	FrameSizeMs int

	// SpeechThreshold is the gate's speech probability threshold. Zero
	// applies 0.5.
	SpeechThreshold float64
}

// Recorder drives capture sessions. All dependencies are injected so tests
// can substitute in-memory fakes for the subprocess, the gate, and the
// durable stop signal.
type Recorder struct {
	capturer Capturer
	engine   vad.Engine
	stop     stopsignal.Signal
	notifier notify.Notifier

	frameSizeMs     int
	speechThreshold float64
}

// NewRecorder creates a Recorder. notifier may be nil, in which case
// notifications are discarded.
func NewRecorder(capturer Capturer, engine vad.Engine, stop stopsignal.Signal, notifier notify.Notifier, cfg Config) *Recorder {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.FrameSizeMs <= 0 {
		cfg.FrameSizeMs = 30
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = 0.5
	}
	return &Recorder{
		capturer:        capturer,
		engine:          engine,
		stop:            stop,
		notifier:        notifier,
		frameSizeMs:     cfg.FrameSizeMs,
		speechThreshold: cfg.SpeechThreshold,
	}
}

// framesFor converts a duration to a frame count, rounding up so thresholds
// are never undershot.
func (r *Recorder) framesFor(d time.Duration) int {
	frame := time.Duration(r.frameSizeMs) * time.Millisecond
	n := int((d + frame - 1) / frame)
	if n < 1 {
		n = 1
	}
	return n
}

// Capture records one utterance. It blocks until a terminal condition fires
// and always terminates the capture subprocess before returning. The error is
// non-nil only for genuine failures ([ErrDeviceUnavailable], gate failures,
// stop-signal storage failures); "user said nothing" is a nil-PCM Result.
func (r *Recorder) Capture(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	gateCfg := vad.Config{
		SampleRate:      TargetSampleRate,
		FrameSizeMs:     r.frameSizeMs,
		SpeechThreshold: r.speechThreshold,
	}

	var gate vad.SessionHandle
	if !opts.PressToTalk {
		var err error
		gate, err = r.engine.NewSession(gateCfg)
		if err != nil {
			return nil, fmt.Errorf("record: create vad session: %w", err)
		}
		defer gate.Close()
		// The engine may reuse recurrent state across sessions; a fresh
		// capture must not inherit any.
		gate.Reset()
	}

	stream, srcRate, err := r.capturer.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.capturer.Stop(); err != nil {
			slog.Warn("failed to stop capture subprocess", "error", err)
		}
	}()

	slog.Debug("capture started",
		"device_rate", srcRate,
		"target_rate", TargetSampleRate,
		"press_to_talk", opts.PressToTalk,
		"silence_mode", opts.SilenceMode,
	)

	sess := &session{
		recorder:   r,
		gate:       gate,
		gateCfg:    gateCfg,
		opts:       opts,
		resampler:  audio.NewResampler(srcRate, TargetSampleRate),
		frameBytes: gateCfg.FrameBytes(),

		silenceFrames:   r.framesFor(opts.SilenceMode.GracePeriod()),
		preSpeechFrames: r.framesFor(opts.PreSpeechTimeout),
	}
	return sess.run(ctx, stream)
}

// session is the running state of one capture attempt. It lives for exactly
// one Capture call and is discarded afterwards.
type session struct {
	recorder   *Recorder
	gate       vad.SessionHandle
	gateCfg    vad.Config
	opts       Options
	resampler  *audio.Resampler
	frameBytes int

	silenceFrames   int
	preSpeechFrames int

	// mutable per-frame state
	out            []byte // accumulated 16 kHz PCM, silence retained
	carry          []byte // partial frame bytes carried to the next read
	speechObserved bool
	silentRun      int
	frames         int
}

// readResult is one delivery from the stream reader goroutine.
type readResult struct {
	data []byte
	err  error
}

// run executes the per-chunk loop until a terminal condition fires.
func (s *session) run(ctx context.Context, stream io.ReadCloser) (*Result, error) {
	// The reader goroutine converts blocking stream reads into channel
	// deliveries so the watchdog can fire while a read is stalled. The done
	// channel releases the goroutine if the loop exits while it is blocked
	// on a send; closing the stream releases it from a blocked Read.
	reads := make(chan readResult, 4)
	done := make(chan struct{})
	defer close(done)
	defer stream.Close()
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case reads <- readResult{data: data}:
				case <-done:
					return
				}
			}
			if err != nil {
				select {
				case reads <- readResult{err: err}:
				case <-done:
				}
				return
			}
		}
	}()

	watchdog := time.NewTimer(s.opts.HardTimeout)
	defer watchdog.Stop()
	poll := time.NewTicker(stopPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-watchdog.C:
			slog.Warn("capture hard timeout fired", "timeout", s.opts.HardTimeout)
			return s.finish(ReasonHardTimeout), nil

		case <-poll.C:
			// The stream may be stalled; the stop signal must still be
			// observable.
			fired, err := stopsignal.Consume(s.recorder.stop)
			if err != nil {
				return nil, err
			}
			if fired {
				return s.finish(ReasonStopSignal), nil
			}

		case rr := <-reads:
			if rr.err != nil {
				if errors.Is(rr.err, io.EOF) {
					// Whatever the resampler and the partial frame still
					// hold belongs to the recording.
					s.out = append(s.out, s.carry...)
					s.out = append(s.out, s.resampler.Flush()...)
					s.carry = nil
					return s.finish(ReasonStreamEnded), nil
				}
				return nil, fmt.Errorf("record: read capture stream: %w", rr.err)
			}

			s.carry = append(s.carry, s.resampler.Resample(rr.data)...)

			for len(s.carry) >= s.frameBytes {
				frame := s.carry[:s.frameBytes]
				s.carry = s.carry[s.frameBytes:]

				done, reason, err := s.processFrame(frame)
				if err != nil {
					return nil, err
				}
				if done {
					return s.finish(reason), nil
				}
			}
		}
	}
}

// processFrame evaluates one complete frame. The order of checks is fixed:
// classification bookkeeping, then the stop signal, then the silence
// threshold, then the pre-speech timeout — so an explicit stop wins over
// automatic termination when both would fire on the same frame.
func (s *session) processFrame(frame []byte) (done bool, reason StopReason, err error) {
	// (1) The frame joins the output unconditionally; silence at the edges
	// is context for the transcription backend, not waste.
	s.out = append(s.out, frame...)
	s.frames++

	// (2)–(3) Classification, skipped entirely in press-to-talk mode.
	if !s.opts.PressToTalk {
		prob, err := s.gate.Classify(frame)
		if err != nil {
			return false, "", fmt.Errorf("record: classify frame: %w", err)
		}
		speech := s.gateCfg.IsSpeech(prob)
		s.recorder.notifier.SpeechDetected(speech)
		if speech {
			s.speechObserved = true
			s.silentRun = 0
		} else if s.speechObserved {
			s.silentRun++
		}
	}

	// (4) Stop signal, checked on every frame even before any speech: a
	// capture that never detects speech must still be cancellable.
	fired, err := stopsignal.Consume(s.recorder.stop)
	if err != nil {
		return false, "", err
	}
	if fired {
		return true, ReasonStopSignal, nil
	}

	if s.opts.PressToTalk {
		return false, "", nil
	}

	// (5) Silence threshold, armed only once speech has been observed.
	if s.speechObserved && s.silentRun >= s.silenceFrames {
		return true, ReasonSilence, nil
	}

	// (6) Pre-speech timeout, disabled once speech begins.
	if !s.speechObserved && s.frames >= s.preSpeechFrames {
		return true, ReasonPreSpeechTimeout, nil
	}

	return false, "", nil
}

// finish assembles the Result for the given terminal reason. In
// voice-activity mode a capture that never observed speech yields nil PCM:
// the user did not speak, which is an outcome, not an error. Press-to-talk
// always yields the captured bytes.
func (s *session) finish(reason StopReason) *Result {
	res := &Result{
		SampleRate:     TargetSampleRate,
		Reason:         reason,
		SpeechObserved: s.speechObserved,
		Frames:         s.frames,
	}
	if s.opts.PressToTalk || s.speechObserved {
		if s.out == nil {
			s.out = []byte{}
		}
		res.PCM = s.out
	}
	slog.Debug("capture finished",
		"reason", reason,
		"frames", s.frames,
		"speech_observed", s.speechObserved,
		"bytes", len(res.PCM),
	)
	return res
}
