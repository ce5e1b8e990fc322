package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transcribe map[string]func(ProviderEntry) (transcribe.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
	}
}

// RegisterTranscribe registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// CreateTranscribe instantiates a transcription provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
