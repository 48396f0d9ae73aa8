package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cadenza-audio/cadenza/pkg/audio"
	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	stt  map[string]func(ProviderEntry) (stt.Provider, error)
	mic  map[string]func(AudioConfig) (audio.MicrophoneSource, error)
	sink map[string]func(AudioConfig) (audio.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:  make(map[string]func(ProviderEntry) (stt.Provider, error)),
		mic:  make(map[string]func(AudioConfig) (audio.MicrophoneSource, error)),
		sink: make(map[string]func(AudioConfig) (audio.Sink, error)),
	}
}

// RegisterSTT registers a speech-to-text provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterMicrophone registers a capture backend factory under name.
func (r *Registry) RegisterMicrophone(name string, factory func(AudioConfig) (audio.MicrophoneSource, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mic[name] = factory
}

// RegisterSink registers a playback backend factory under name.
func (r *Registry) RegisterSink(name string, factory func(AudioConfig) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink[name] = factory
}

// CreateSTT instantiates a speech-to-text provider using the factory
// registered under entry.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateMicrophone instantiates a capture backend using the factory
// registered under cfg.Microphone.
func (r *Registry) CreateMicrophone(cfg AudioConfig) (audio.MicrophoneSource, error) {
	r.mu.RLock()
	factory, ok := r.mic[cfg.Microphone]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: microphone/%q", ErrBackendNotRegistered, cfg.Microphone)
	}
	return factory(cfg)
}

// CreateSink instantiates a playback backend using the factory registered
// under cfg.Sink.
func (r *Registry) CreateSink(cfg AudioConfig) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sink[cfg.Sink]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrBackendNotRegistered, cfg.Sink)
	}
	return factory(cfg)
}
