// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voicelayer/voicelayer/pkg/audio"
	"github.com/voicelayer/voicelayer/pkg/provider/stt"
)

// NativeProviderName identifies the in-process whisper.cpp backend.
const NativeProviderName = "whisper-native"

// nativeSampleRate is the only rate whisper.cpp accepts.
const nativeSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings
// (CGO), eliminating IPC entirely. The model is loaded once at startup and
// shared across calls; each call gets its own whisper context because
// contexts are not thread-safe while the model is.
type NativeProvider struct {
	language string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns NativeProviderName.
func (p *NativeProvider) Name() string { return NativeProviderName }

// Available reports whether the model is loaded. There is nothing remote to
// probe.
func (p *NativeProvider) Available(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model != nil
}

// Close releases the whisper model. The provider is unavailable afterwards.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe resamples the utterance to the 16 kHz whisper.cpp expects, runs
// inference on a fresh context, and concatenates the resulting segments.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &stt.BackendError{Backend: NativeProviderName, Err: err}
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return nil, &stt.BackendError{Backend: NativeProviderName, Err: errors.New("model is closed")}
	}

	start := time.Now()
	samples := pcmToFloat32(audio.ResampleMono16(pcm, sampleRate, nativeSampleRate))

	wctx, err := model.NewContext()
	if err != nil {
		return nil, &stt.BackendError{Backend: NativeProviderName, Err: fmt.Errorf("create context: %w", err)}
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, &stt.BackendError{Backend: NativeProviderName, Err: fmt.Errorf("process audio: %w", err)}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &stt.BackendError{Backend: NativeProviderName, Err: fmt.Errorf("read segment: %w", err)}
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return &stt.Result{
		Text:    strings.Join(parts, " "),
		Backend: NativeProviderName,
		Elapsed: time.Since(start),
	}, nil
}

// pcmToFloat32 converts 16-bit signed little-endian mono PCM to the
// normalized float32 samples the bindings expect.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / audio.BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
