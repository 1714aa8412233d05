package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/codiris/voice/internal/history"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// HistoryFactory opens a history store for the given settings.
type HistoryFactory func(ctx context.Context, cfg HistoryConfig) (history.Store, error)

// factories is one provider kind's name-to-constructor table.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, m: make(map[string]F)}
}

func (f factories[F]) lookup(name string) (F, error) {
	fn, ok := f.m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return fn, nil
}

func (f factories[F]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	llm     factories[func(ProviderEntry) (llm.Provider, error)]
	stt     factories[func(ProviderEntry) (stt.Transcriber, error)]
	tts     factories[func(ProviderEntry) (tts.Provider, error)]
	history factories[HistoryFactory]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:     newFactories[func(ProviderEntry) (llm.Provider, error)]("llm"),
		stt:     newFactories[func(ProviderEntry) (stt.Transcriber, error)]("stt"),
		tts:     newFactories[func(ProviderEntry) (tts.Provider, error)]("tts"),
		history: newFactories[HistoryFactory]("history"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterSTT registers a transcription strategy factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterHistory registers a history store factory under a backend name.
func (r *Registry) RegisterHistory(backend HistoryBackend, factory HistoryFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.m[string(backend)] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateSTT instantiates a transcription strategy using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// OpenHistory opens the store registered for cfg.Backend.
func (r *Registry) OpenHistory(ctx context.Context, cfg HistoryConfig) (history.Store, error) {
	r.mu.RLock()
	factory, err := r.history.lookup(string(cfg.Backend))
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(ctx, cfg)
}

// Names returns the sorted provider names registered for kind ("llm", "stt",
// "tts" or "history"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.llm.kind:
		return r.llm.names()
	case r.stt.kind:
		return r.stt.names()
	case r.tts.kind:
		return r.tts.names()
	case r.history.kind:
		return r.history.names()
	}
	return nil
}
