package energy_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/voicelayer/voicelayer/pkg/provider/vad"
	"github.com/voicelayer/voicelayer/pkg/provider/vad/energy"
)

// cfg is a typical 16 kHz, 30 ms, 0.5-threshold gate configuration.
var cfg = vad.Config{SampleRate: 16000, FrameSizeMs: 30, SpeechThreshold: 0.5}

// speechFrame returns one exact-size frame of a loud 440 Hz sine wave.
func speechFrame() []byte {
	n := cfg.FrameBytes() / 2
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// silenceFrame returns one exact-size frame of zeros.
func silenceFrame() []byte {
	return make([]byte, cfg.FrameBytes())
}

func mustSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	sess, err := energy.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestNewSession_InvalidConfig_ReturnsError(t *testing.T) {
	eng := energy.New()
	bad := []vad.Config{
		{SampleRate: 0, FrameSizeMs: 30, SpeechThreshold: 0.5},
		{SampleRate: 16000, FrameSizeMs: 0, SpeechThreshold: 0.5},
		{SampleRate: 16000, FrameSizeMs: 30, SpeechThreshold: 1.5},
	}
	for i, c := range bad {
		if _, err := eng.NewSession(c); err == nil {
			t.Errorf("config %d: expected error, got nil", i)
		}
	}
}

func TestClassify_Speech_AboveThreshold(t *testing.T) {
	sess := mustSession(t)
	prob, err := sess.Classify(speechFrame())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !cfg.IsSpeech(prob) {
		t.Errorf("speech frame probability = %f, want ≥ %f", prob, cfg.SpeechThreshold)
	}
}

func TestClassify_Silence_BelowThreshold(t *testing.T) {
	sess := mustSession(t)
	prob, err := sess.Classify(silenceFrame())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cfg.IsSpeech(prob) {
		t.Errorf("silence frame probability = %f, want < %f", prob, cfg.SpeechThreshold)
	}
}

func TestClassify_WrongFrameSize_ReturnsError(t *testing.T) {
	sess := mustSession(t)
	if _, err := sess.Classify(make([]byte, cfg.FrameBytes()-2)); err == nil {
		t.Error("expected error for short frame, got nil")
	}
	if _, err := sess.Classify(make([]byte, cfg.FrameBytes()+2)); err == nil {
		t.Error("expected error for long frame, got nil")
	}
}

func TestClassify_SmoothingCarriesStateAcrossFrames(t *testing.T) {
	sess := mustSession(t)

	// Prime the EMA with loud frames.
	for i := 0; i < 5; i++ {
		if _, err := sess.Classify(speechFrame()); err != nil {
			t.Fatalf("Classify: %v", err)
		}
	}

	// The first silent frame right after speech still carries energy from
	// the smoothing history.
	afterSpeech, err := sess.Classify(silenceFrame())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	fresh := mustSession(t)
	cold, err := fresh.Classify(silenceFrame())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if afterSpeech <= cold {
		t.Errorf("smoothed probability after speech (%f) should exceed cold-start silence (%f)", afterSpeech, cold)
	}
}

func TestReset_ClearsSmoothingHistory(t *testing.T) {
	sess := mustSession(t)
	for i := 0; i < 5; i++ {
		if _, err := sess.Classify(speechFrame()); err != nil {
			t.Fatalf("Classify: %v", err)
		}
	}

	sess.Reset()

	prob, err := sess.Classify(silenceFrame())
	if err != nil {
		t.Fatalf("Classify after Reset: %v", err)
	}
	if prob != 0 {
		t.Errorf("probability after Reset on silence = %f, want 0", prob)
	}
}

func TestClassify_AfterClose_ReturnsError(t *testing.T) {
	sess := mustSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := sess.Classify(silenceFrame()); err == nil {
		t.Error("expected error after Close, got nil")
	}
}
