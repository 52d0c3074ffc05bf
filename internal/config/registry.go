package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/live"
	"github.com/MrWong99/solace/pkg/provider/speech"
	"github.com/MrWong99/solace/pkg/provider/text"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	speech map[string]func(ProviderEntry) (speech.Provider, error)
	text   map[string]func(ProviderEntry) (text.Provider, error)
	live   map[string]func(ProviderEntry) (live.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		speech: make(map[string]func(ProviderEntry) (speech.Provider, error)),
		text:   make(map[string]func(ProviderEntry) (text.Provider, error)),
		live:   make(map[string]func(ProviderEntry) (live.Provider, error)),
	}
}

// RegisterSpeech registers a speech synthesis provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// RegisterText registers a text generation provider factory under name.
func (r *Registry) RegisterText(name string, factory func(ProviderEntry) (text.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = factory
}

// RegisterLive registers a live voice provider factory under name.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// CreateSpeech instantiates a speech provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Provider, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateText instantiates a text provider using the factory registered under entry.Name.
func (r *Registry) CreateText(entry ProviderEntry) (text.Provider, error) {
	r.mu.RLock()
	factory, ok := r.text[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: text/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLive instantiates a live provider using the factory registered under entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names for kind ("speech", "text" or
// "live"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "speech":
		for n := range r.speech {
			names = append(names, n)
		}
	case "text":
		for n := range r.text {
			names = append(names, n)
		}
	case "live":
		for n := range r.live {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
