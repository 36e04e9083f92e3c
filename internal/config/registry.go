package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	"github.com/voicelayer/voicelayer/pkg/provider/tts"
	"github.com/voicelayer/voicelayer/pkg/provider/vad"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions for each
// provider kind. main registers the concrete backends at startup; building
// from a name keeps the config file the single source of backend selection.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]func(*Config) (stt.Provider, error)
	tts map[string]func(*Config) (tts.Provider, error)
	vad map[string]func(*Config) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]func(*Config) (stt.Provider, error)),
		tts: make(map[string]func(*Config) (tts.Provider, error)),
		vad: make(map[string]func(*Config) (vad.Engine, error)),
	}
}

// RegisterSTT registers a transcription backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(*Config) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a synthesis backend factory under name.
func (r *Registry) RegisterTTS(name string, factory func(*Config) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a voice-activity engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(*Config) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// STTBackends returns the registered transcription backend names.
func (r *Registry) STTBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	return names
}

// CreateSTT instantiates the transcription backend registered under name.
// Returns [ErrBackendNotRegistered] if no factory has been registered.
func (r *Registry) CreateSTT(name string, cfg *Config) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}

// CreateTTS instantiates the synthesis backend registered under name.
func (r *Registry) CreateTTS(name string, cfg *Config) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}

// CreateVAD instantiates the voice-activity engine registered under name.
func (r *Registry) CreateVAD(name string, cfg *Config) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}
