// Package config provides the configuration schema, loader, backend registry
// and hot-reload support for VoiceLayer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that decodes from YAML strings like "1.5s" or
// "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration structure for VoiceLayer.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	Paths       PathsConfig       `yaml:"paths"`
	Recording   RecordingConfig   `yaml:"recording"`
	STT         STTConfig         `yaml:"stt"`
	TTS         TTSConfig         `yaml:"tts"`
	Notify      NotifyConfig      `yaml:"notify"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// PathsConfig holds the filesystem locations shared across VoiceLayer
// processes. The lock and stop files are a cross-process protocol; every
// process must resolve them identically.
type PathsConfig struct {
	// Home is the VoiceLayer state directory. Default "~/.voicelayer".
	Home string `yaml:"home"`

	// LockFile is the microphone session lock record. Default
	// "<home>/mic.lock".
	LockFile string `yaml:"lock_file"`

	// StopFile is the stop-signal file. Its mere existence is the signal;
	// "touch" from a shell is a valid raise. Default "<home>/stop".
	StopFile string `yaml:"stop_file"`
}

// RecordingConfig tunes the capture pipeline. All fields are hot-reloadable
// through the [Reloader].
type RecordingConfig struct {
	// SilenceMode selects the grace period after last detected speech:
	// "quick" (0.5s), "standard" (1.5s) or "thoughtful" (3s). Default
	// "standard".
	SilenceMode string `yaml:"silence_mode"`

	// PreSpeechTimeout bounds how long to wait for speech to begin.
	// Default 15s.
	PreSpeechTimeout Duration `yaml:"pre_speech_timeout"`

	// HardTimeout is the wall-clock cap on a single capture. Default 2m.
	HardTimeout Duration `yaml:"hard_timeout"`

	// FrameMs is the voice-activity classification frame size in
	// milliseconds. Default 30.
	FrameMs int `yaml:"frame_ms"`

	// SpeechThreshold is the speech-probability cutoff in (0, 1).
	// Default 0.5.
	SpeechThreshold float64 `yaml:"speech_threshold"`
}

// STTConfig selects and configures transcription backends. Cloud credentials
// are deliberately absent: the Deepgram API key comes from the environment
// and is injected by main, never parsed from a file that may end up in
// version control.
type STTConfig struct {
	// Backend pins a single backend ("whisper-server", "whisper-native" or
	// "deepgram") and fails loudly when it is unavailable. Empty means
	// automatic selection, local before cloud.
	Backend string `yaml:"backend"`

	Whisper  WhisperConfig  `yaml:"whisper"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
}

// WhisperConfig configures the local whisper backends.
type WhisperConfig struct {
	// ServerURL is the whisper-server base URL. Default
	// "http://127.0.0.1:8090".
	ServerURL string `yaml:"server_url"`

	// Model is the model hint sent to whisper-server. Optional.
	Model string `yaml:"model"`

	// NativeModelPath is the GGML model file for the in-process backend.
	// Empty disables whisper-native.
	NativeModelPath string `yaml:"native_model_path"`

	// Language is the transcription language hint. Optional.
	Language string `yaml:"language"`
}

// DeepgramConfig configures the cloud transcription backend.
type DeepgramConfig struct {
	// Model is the Deepgram model name. Default "nova-3".
	Model string `yaml:"model"`

	// Language is the transcription language hint. Optional.
	Language string `yaml:"language"`
}

// TTSConfig configures spoken prompts through the local synthesis daemon.
type TTSConfig struct {
	// Enabled turns spoken prompts on. Default false; interactions then
	// skip straight to recording.
	Enabled bool `yaml:"enabled"`

	// DaemonURL is the synthesis daemon base URL. Default
	// "http://127.0.0.1:8880".
	DaemonURL string `yaml:"daemon_url"`

	// ReferenceWAV is the voice-cloning reference sample path. Required
	// when Enabled.
	ReferenceWAV string `yaml:"reference_wav"`

	// ReferenceText is the transcript of ReferenceWAV. Required when
	// Enabled.
	ReferenceText string `yaml:"reference_text"`
}

// NotifyConfig configures the status UI socket.
type NotifyConfig struct {
	// Socket is the Unix socket path for NDJSON state notifications.
	// Default "/tmp/voicelayer.sock".
	Socket string `yaml:"socket"`

	// Disabled turns status notifications off entirely.
	Disabled bool `yaml:"disabled"`
}

// DiagnosticsConfig configures the optional metrics/health HTTP listener.
type DiagnosticsConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and
	// /readyz (e.g. "127.0.0.1:9478"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued fields with documented defaults. Path
// defaults derive from Paths.Home, so an overridden home moves the lock and
// stop files with it.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.Paths.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Paths.Home = filepath.Join(home, ".voicelayer")
	}
	if c.Paths.LockFile == "" {
		c.Paths.LockFile = filepath.Join(c.Paths.Home, "mic.lock")
	}
	if c.Paths.StopFile == "" {
		c.Paths.StopFile = filepath.Join(c.Paths.Home, "stop")
	}
	if c.Recording.SilenceMode == "" {
		c.Recording.SilenceMode = "standard"
	}
	if c.Recording.PreSpeechTimeout == 0 {
		c.Recording.PreSpeechTimeout = Duration(15 * time.Second)
	}
	if c.Recording.HardTimeout == 0 {
		c.Recording.HardTimeout = Duration(2 * time.Minute)
	}
	if c.Recording.FrameMs == 0 {
		c.Recording.FrameMs = 30
	}
	if c.Recording.SpeechThreshold == 0 {
		c.Recording.SpeechThreshold = 0.5
	}
	if c.STT.Whisper.ServerURL == "" {
		c.STT.Whisper.ServerURL = "http://127.0.0.1:8090"
	}
	if c.STT.Deepgram.Model == "" {
		c.STT.Deepgram.Model = "nova-3"
	}
	if c.TTS.DaemonURL == "" {
		c.TTS.DaemonURL = "http://127.0.0.1:8880"
	}
	if c.Notify.Socket == "" {
		c.Notify.Socket = "/tmp/voicelayer.sock"
	}
}
