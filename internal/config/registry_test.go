package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/voicelayer/voicelayer/internal/config"
	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	sttmock "github.com/voicelayer/voicelayer/pkg/provider/stt/mock"
	"github.com/voicelayer/voicelayer/pkg/provider/tts"
	ttsmock "github.com/voicelayer/voicelayer/pkg/provider/tts/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterSTT("mock", func(cfg *config.Config) (stt.Provider, error) {
		return &sttmock.Provider{NameVal: "mock"}, nil
	})

	p, err := r.CreateSTT("mock", config.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", p.Name())
	}
}

func TestRegistry_UnregisteredBackend(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	_, err := r.CreateSTT("whisper-server", config.Default())
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("error = %v, want ErrBackendNotRegistered", err)
	}
	if _, err := r.CreateTTS("tts-daemon", config.Default()); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("tts error = %v, want ErrBackendNotRegistered", err)
	}
	if _, err := r.CreateVAD("energy", config.Default()); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("vad error = %v, want ErrBackendNotRegistered", err)
	}
}

func TestRegistry_FactoryReceivesConfig(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	var seen string
	r.RegisterTTS("tts-daemon", func(cfg *config.Config) (tts.Provider, error) {
		seen = cfg.TTS.DaemonURL
		return &ttsmock.Provider{}, nil
	})

	cfg := config.Default()
	cfg.TTS.DaemonURL = "http://10.1.2.3:8880"
	if _, err := r.CreateTTS("tts-daemon", cfg); err != nil {
		t.Fatal(err)
	}
	if seen != "http://10.1.2.3:8880" {
		t.Errorf("factory saw daemon_url %q", seen)
	}
}

func TestRegistry_STTBackendsListsRegistrations(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterSTT("whisper-server", func(*config.Config) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	r.RegisterSTT("deepgram", func(*config.Config) (stt.Provider, error) { return &sttmock.Provider{}, nil })

	names := r.STTBackends()
	slices.Sort(names)
	if want := []string{"deepgram", "whisper-server"}; !slices.Equal(names, want) {
		t.Errorf("STTBackends() = %v, want %v", names, want)
	}
}
