package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	"github.com/MrWong99/voicesphere/pkg/provider/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
	"github.com/MrWong99/voicesphere/pkg/provider/translate"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one kind's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

// create looks up entry.Name under mu and runs the factory outside it, so
// factories may themselves call back into the Registry.
func create[T any](mu *sync.RWMutex, f factories[T], entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := f.m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to their constructors for each provider kind.
// It is safe for concurrent use. Registering an existing name replaces it.
type Registry struct {
	mu        sync.RWMutex
	stt       factories[stt.Provider]
	tts       factories[tts.Provider]
	llm       factories[llm.Provider]
	chat      factories[chat.Provider]
	search    factories[search.Provider]
	translate factories[translate.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       newFactories[stt.Provider]("stt"),
		tts:       newFactories[tts.Provider]("tts"),
		llm:       newFactories[llm.Provider]("llm"),
		chat:      newFactories[chat.Provider]("chat"),
		search:    newFactories[search.Provider]("search"),
		translate: newFactories[translate.Provider]("translate"),
	}
}

func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat.m[name] = factory
}

func (r *Registry) RegisterSearch(name string, factory func(ProviderEntry) (search.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.search.m[name] = factory
}

func (r *Registry) RegisterTranslate(name string, factory func(ProviderEntry) (translate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate.m[name] = factory
}

// CreateSTT instantiates the STT provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, entry)
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(&r.mu, r.tts, entry)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, entry)
}

// CreateChat instantiates the chat provider registered under entry.Name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	return create(&r.mu, r.chat, entry)
}

// CreateSearch instantiates the search provider registered under entry.Name.
func (r *Registry) CreateSearch(entry ProviderEntry) (search.Provider, error) {
	return create(&r.mu, r.search, entry)
}

// CreateTranslate instantiates the translation provider registered under
// entry.Name.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Provider, error) {
	return create(&r.mu, r.translate, entry)
}

// Names returns the sorted provider names registered for kind ("stt", "tts",
// "llm", "chat", "search" or "translate"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	case "llm":
		return r.llm.names()
	case "chat":
		return r.chat.names()
	case "search":
		return r.search.names()
	case "translate":
		return r.translate.names()
	}
	return nil
}
