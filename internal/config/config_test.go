package config_test

import (
	"strings"
	"testing"

	"github.com/voicelayer/voicelayer/internal/config"
)

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.Recording.SilenceMode = "forever"
	cfg.Recording.FrameMs = 5
	cfg.Recording.SpeechThreshold = 1.5
	cfg.STT.Backend = "siri"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "silence_mode", "frame_ms", "speech_threshold", "stt.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error is missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestValidate_NativeBackendRequiresModelPath(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.STT.Backend = "whisper-native"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "native_model_path") {
		t.Fatalf("expected native_model_path error, got %v", err)
	}

	cfg.STT.Whisper.NativeModelPath = "/models/ggml-base.bin"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error with model path set: %v", err)
	}
}

func TestValidate_EnabledTTSRequiresReference(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.TTS.Enabled = true

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "reference_wav") || !strings.Contains(err.Error(), "reference_text") {
		t.Errorf("error should name both missing reference fields: %v", err)
	}
}

func TestValidate_LockAndStopMustDiffer(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Paths.LockFile = "/tmp/voicelayer-state"
	cfg.Paths.StopFile = "/tmp/voicelayer-state"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "must not be the same") {
		t.Fatalf("expected same-file error, got %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`"verbose" should be invalid`)
	}
}

func TestDuration_String(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("recording:\n  pre_speech_timeout: 1.5s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Recording.PreSpeechTimeout.String(); got != "1.5s" {
		t.Errorf("String() = %q, want 1.5s", got)
	}
}
