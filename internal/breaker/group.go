package breaker

import (
	"fmt"
	"sort"
	"sync"
)

// Group manages one breaker per named dependency.
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	cfg  Config
	opts []Option
}

// NewGroup creates a group whose breakers share cfg and opts.
func NewGroup(cfg Config, opts ...Option) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		opts:     opts,
	}
}

// Get returns (or lazily creates) the breaker for name.
func (g *Group) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Double-check after acquiring write lock
	if b, ok := g.breakers[name]; ok {
		return b
	}
	b = New(name, g.cfg, g.opts...)
	g.breakers[name] = b
	return b
}

// Lookup returns the breaker for name without creating one.
func (g *Group) Lookup(name string) (*Breaker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.breakers[name]
	return b, ok
}

// Reset resets the named breaker.
func (g *Group) Reset(name string) error {
	b, ok := g.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown circuit breaker %q", name)
	}
	b.Reset()
	return nil
}

// Stats returns snapshots of every breaker, ordered by name.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	names := make([]string, 0, len(g.breakers))
	for name := range g.breakers {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)

	out := make([]Stats, 0, len(names))
	for _, name := range names {
		b, _ := g.Lookup(name)
		out = append(out, b.Stats())
	}
	return out
}

// AllClosed reports whether no breaker in the group is open.
func (g *Group) AllClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, b := range g.breakers {
		if b.State() == StateOpen {
			return false
		}
	}
	return true
}
