package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	sttmock "github.com/voicelayer/voicelayer/pkg/provider/stt/mock"
	ttsmock "github.com/voicelayer/voicelayer/pkg/provider/tts/mock"
)

func TestTranscription_PassesWithAvailableBackend(t *testing.T) {
	sel := stt.NewSelector([]stt.Provider{&sttmock.Provider{AvailableVal: true}})

	c := Transcription(sel)
	if c.Name != "transcription" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Optional {
		t.Error("transcription must be a required check")
	}
	if err := c.Probe(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTranscription_FailsWithoutBackend(t *testing.T) {
	sel := stt.NewSelector([]stt.Provider{&sttmock.Provider{AvailableVal: false}})

	if err := Transcription(sel).Probe(context.Background()); err == nil {
		t.Fatal("expected error when no backend is available")
	}
}

func TestSynthesis_ReflectsAvailability(t *testing.T) {
	if err := Synthesis(&ttsmock.Provider{AvailableVal: true}).Probe(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	c := Synthesis(&ttsmock.Provider{AvailableVal: false})
	if !c.Optional {
		t.Error("synthesis must be an optional check; a missing voice only degrades the pipeline")
	}
	if err := c.Probe(context.Background()); err == nil {
		t.Error("expected error for unavailable synthesis backend")
	}
}

func TestStateDir_WritableDirPasses(t *testing.T) {
	dir := t.TempDir()
	if err := StateDir(dir).Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The probe file must not be left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestStateDir_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	if err := StateDir(dir).Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state dir was not created: %v", err)
	}
}

func TestStateDir_UnwritableDirFails(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	if err := StateDir(dir).Probe(context.Background()); err == nil {
		t.Fatal("expected error for read-only state dir")
	}
}
