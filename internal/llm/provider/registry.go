// Package provider builds the model backends named in the configuration.
package provider

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/config"
	"github.com/kvasilopoulos/contact-center/internal/llm"
	"github.com/kvasilopoulos/contact-center/internal/llm/anthropic"
	"github.com/kvasilopoulos/contact-center/internal/llm/openai"
	"github.com/kvasilopoulos/contact-center/internal/llm/realtime"
)

type configurable interface {
	Configured() bool
}

// Registry manages text and audio backends.
type Registry struct {
	mu      sync.RWMutex
	text    map[string]llm.Backend
	audio   llm.AudioBackend
	primary string
}

func NewRegistry(primary string) *Registry {
	return &Registry{
		text:    make(map[string]llm.Backend),
		primary: primary,
	}
}

func (r *Registry) Register(b llm.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[b.Name()] = b
}

func (r *Registry) RegisterAudio(b llm.AudioBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = b
}

func (r *Registry) Get(name string) (llm.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.text[name]
	return b, ok
}

// Primary returns the backend selected for text classification.
func (r *Registry) Primary() (llm.Backend, error) {
	b, ok := r.Get(r.primary)
	if !ok {
		return nil, fmt.Errorf("no backend registered for %q", r.primary)
	}
	return b, nil
}

func (r *Registry) Audio() (llm.AudioBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio, r.audio != nil
}

// Names lists registered text backends.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.text))
	for name := range r.text {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrimaryConfigured reports whether the primary backend has credentials.
// Backends without a notion of credentials count as configured.
func (r *Registry) PrimaryConfigured() bool {
	b, err := r.Primary()
	if err != nil {
		return false
	}
	if c, ok := b.(configurable); ok {
		return c.Configured()
	}
	return true
}

func newHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	if maxConns <= 0 {
		maxConns = 50
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// BuildFromConfig builds every backend the configuration describes. Backends
// without credentials are still registered and report ErrNotConfigured when
// called.
func BuildFromConfig(cfg *config.Config) *Registry {
	registry := NewRegistry(cfg.Classification.Backend)

	registry.Register(openai.New(openai.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Organization:      cfg.OpenAI.Organization,
		Timeout:           cfg.OpenAI.Timeout,
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
	}, newHTTPClient(cfg.OpenAI.Timeout, cfg.OpenAI.MaxConcurrent)))

	registry.Register(anthropic.New(anthropic.Config{
		APIKey:  cfg.Anthropic.APIKey,
		BaseURL: cfg.Anthropic.BaseURL,
		Model:   cfg.Anthropic.Model,
		Timeout: cfg.Anthropic.Timeout,
	}, newHTTPClient(cfg.Anthropic.Timeout, 0)))

	registry.RegisterAudio(realtime.New(realtime.Config{
		APIKey:  cfg.OpenAI.APIKey,
		URL:     cfg.OpenAI.RealtimeURL,
		Timeout: cfg.Classification.RealtimeTimeout,
	}))

	return registry
}
