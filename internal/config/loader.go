package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTBackends lists the transcription backends a config may pin.
var ValidSTTBackends = []string{"whisper-server", "whisper-native", "deepgram"}

// ValidSilenceModes lists the recognised silence policies.
var ValidSilenceModes = []string{"quick", "standard", "thoughtful"}

// Load reads the YAML configuration file at path, fills defaults and returns
// a validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals. Unknown YAML keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Paths.LockFile == "" {
		errs = append(errs, errors.New("paths.lock_file is required"))
	}
	if cfg.Paths.StopFile == "" {
		errs = append(errs, errors.New("paths.stop_file is required"))
	}
	if cfg.Paths.LockFile != "" && cfg.Paths.LockFile == cfg.Paths.StopFile {
		errs = append(errs, errors.New("paths.lock_file and paths.stop_file must not be the same file"))
	}

	if !slices.Contains(ValidSilenceModes, cfg.Recording.SilenceMode) {
		errs = append(errs, fmt.Errorf("recording.silence_mode %q is invalid; valid values: quick, standard, thoughtful", cfg.Recording.SilenceMode))
	}
	if cfg.Recording.PreSpeechTimeout < 0 {
		errs = append(errs, fmt.Errorf("recording.pre_speech_timeout %s must not be negative", cfg.Recording.PreSpeechTimeout))
	}
	if cfg.Recording.HardTimeout < 0 {
		errs = append(errs, fmt.Errorf("recording.hard_timeout %s must not be negative", cfg.Recording.HardTimeout))
	}
	if cfg.Recording.FrameMs < 10 || cfg.Recording.FrameMs > 100 {
		errs = append(errs, fmt.Errorf("recording.frame_ms %d is out of range [10, 100]", cfg.Recording.FrameMs))
	}
	if cfg.Recording.SpeechThreshold <= 0 || cfg.Recording.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("recording.speech_threshold %.2f is out of range (0, 1)", cfg.Recording.SpeechThreshold))
	}

	if cfg.STT.Backend != "" && !slices.Contains(ValidSTTBackends, cfg.STT.Backend) {
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: whisper-server, whisper-native, deepgram", cfg.STT.Backend))
	}
	if cfg.STT.Backend == "whisper-native" && cfg.STT.Whisper.NativeModelPath == "" {
		errs = append(errs, errors.New("stt.backend whisper-native requires stt.whisper.native_model_path"))
	}

	if cfg.TTS.Enabled {
		if cfg.TTS.ReferenceWAV == "" {
			errs = append(errs, errors.New("tts.reference_wav is required when tts.enabled is true"))
		}
		if cfg.TTS.ReferenceText == "" {
			errs = append(errs, errors.New("tts.reference_text is required when tts.enabled is true"))
		}
	}

	if cfg.Notify.Disabled && cfg.Notify.Socket != "" && cfg.Notify.Socket != Default().Notify.Socket {
		slog.Warn("notify.socket is set but notify.disabled is true; no notifications will be sent",
			"socket", cfg.Notify.Socket)
	}

	return errors.Join(errs...)
}
