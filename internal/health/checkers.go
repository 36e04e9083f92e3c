package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	"github.com/voicelayer/voicelayer/pkg/provider/tts"
)

// Transcription returns a Check that passes while at least one
// transcription backend would be selected for the next utterance. It runs the
// same selection logic as a real interaction, so a pinned-but-down backend
// fails readiness instead of failing the first ask.
func Transcription(sel *stt.Selector) Check {
	return Check{
		Name: "transcription",
		Probe: func(ctx context.Context) error {
			_, err := sel.Select(ctx)
			return err
		},
	}
}

// Synthesis returns a Check probing the configured speech backend. It is
// optional: a missing voice degrades readiness instead of failing it, the
// same way the orchestrator treats prompt playback as soft. Register it only
// when spoken prompts are enabled.
func Synthesis(p tts.Provider) Check {
	return Check{
		Name:     "synthesis",
		Optional: true,
		Probe: func(ctx context.Context) error {
			if !p.Available(ctx) {
				return fmt.Errorf("%s is not available", p.Name())
			}
			return nil
		},
	}
}

// StateDir returns a Check verifying the VoiceLayer state directory is
// writable. The session lock and stop signal both live there; a read-only
// directory would turn every interaction into an I/O failure.
func StateDir(dir string) Check {
	return Check{
		Name: "state-dir",
		Probe: func(_ context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %q: %w", dir, err)
			}
			probe, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return fmt.Errorf("write probe in %q: %w", dir, err)
			}
			name := probe.Name()
			probe.Close()
			if err := os.Remove(name); err != nil {
				return fmt.Errorf("remove probe %q: %w", filepath.Base(name), err)
			}
			return nil
		},
	}
}
