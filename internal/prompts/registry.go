package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
)

// NotFoundError is returned when a prompt id or version is not registered.
type NotFoundError struct {
	ID        string
	Version   string
	Available []string
}

func (e *NotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("prompt %q not found", e.ID)
	}
	return fmt.Sprintf("prompt %q version %q not found (available: %s)", e.ID, e.Version, strings.Join(e.Available, ", "))
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Selection describes which template served a request.
type Selection struct {
	PromptID     string `json:"prompt_id"`
	Version      string `json:"version"`
	Variant      string `json:"variant"`
	ExperimentID string `json:"experiment_id,omitempty"`
	Model        string `json:"model,omitempty"`
}

// VariantActive marks a selection that bypassed experiments.
const VariantActive = "active"

// Option customises a Registry.
type Option func(*Registry)

// WithRand replaces the random source used for variant selection.
func WithRand(fn func() float64) Option {
	return func(r *Registry) { r.rand = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry holds versioned prompt templates, the active version per id and
// A/B experiments. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	templates   map[string]*Template
	active      map[string]string
	pinned      map[string]bool
	experiments map[string]*Experiment

	rand   func() float64
	logger *slog.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		templates:   make(map[string]*Template),
		active:      make(map[string]string),
		pinned:      make(map[string]bool),
		experiments: make(map[string]*Experiment),
		rand:        rand.Float64,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles and stores t. The first version registered for an id
// becomes active.
func (r *Registry) Register(t *Template) error {
	if err := t.compile(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := t.Key()
	if _, exists := r.templates[key]; exists {
		r.logger.Warn("overwriting prompt template", "prompt_id", t.ID, "version", t.Version)
	}
	r.templates[key] = t
	if _, ok := r.active[t.ID]; !ok {
		r.active[t.ID] = t.Version
	}
	return nil
}

// Get returns the template for id at version, or the active version when
// version is empty.
func (r *Registry) Get(id, version string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id, version)
}

func (r *Registry) getLocked(id, version string) (*Template, error) {
	if version == "" {
		v, ok := r.active[id]
		if !ok {
			return nil, &NotFoundError{ID: id}
		}
		version = v
	}
	t, ok := r.templates[id+":"+version]
	if !ok {
		return nil, &NotFoundError{ID: id, Version: version, Available: r.versionsLocked(id)}
	}
	return t, nil
}

func (r *Registry) GetActive(id string) (*Template, error) {
	return r.Get(id, "")
}

func (r *Registry) GetActiveVersion(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.active[id]
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return v, nil
}

// SetActive makes version the active version for id. The override survives
// hot reloads while the version exists.
func (r *Registry) SetActive(id, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[id+":"+version]; !ok {
		return &NotFoundError{ID: id, Version: version, Available: r.versionsLocked(id)}
	}
	r.active[id] = version
	r.pinned[id] = true
	r.logger.Info("active prompt version changed", "prompt_id", id, "version", version)
	return nil
}

func (r *Registry) AddExperiment(e *Experiment) error {
	if e.ID == "" {
		return errors.New("experiment id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[e.ID] = e
	return nil
}

func (r *Registry) GetExperiment(id string) (*Experiment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experiments[id]
	return e, ok
}

// Experiments returns all experiments ordered by id.
func (r *Registry) Experiments() []*Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Experiment, 0, len(r.experiments))
	for _, e := range r.experiments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetForExperiment resolves the template for id, routing through the
// experiment when experimentID names an active one. Unknown or inactive
// experiments fall back to the active version.
func (r *Registry) GetForExperiment(id, experimentID string) (*Template, Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exp *Experiment
	if experimentID != "" {
		e, ok := r.experiments[experimentID]
		if ok && e.Active {
			exp = e
		} else {
			r.logger.Info("experiment not active, using active prompt version",
				"experiment_id", experimentID, "prompt_id", id, "known", ok)
		}
	}

	if exp == nil {
		t, err := r.getLocked(id, "")
		if err != nil {
			return nil, Selection{}, err
		}
		return t, Selection{PromptID: id, Version: t.Version, Variant: VariantActive}, nil
	}

	variant, err := exp.SelectVariant(r.rand)
	if err != nil {
		return nil, Selection{}, err
	}
	t, err := r.getLocked(id, variant.Version)
	if err != nil {
		return nil, Selection{}, err
	}
	return t, Selection{
		PromptID:     id,
		Version:      t.Version,
		Variant:      variant.Name,
		ExperimentID: exp.ID,
		Model:        variant.Model,
	}, nil
}

// ListPrompts returns every registered prompt id, sorted.
func (r *Registry) ListPrompts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) ListVersions(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versionsLocked(id)
}

func (r *Registry) versionsLocked(id string) []string {
	var versions []string
	prefix := id + ":"
	for key, t := range r.templates {
		if strings.HasPrefix(key, prefix) {
			versions = append(versions, t.Version)
		}
	}
	sort.Strings(versions)
	return versions
}

// Stats summarises the registry contents.
type Stats struct {
	TotalTemplates    int                 `json:"total_templates"`
	UniquePrompts     int                 `json:"unique_prompts"`
	ActiveExperiments int                 `json:"active_experiments"`
	Prompts           map[string][]string `json:"prompts"`
	ActiveVersions    map[string]string   `json:"active_versions"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		TotalTemplates: len(r.templates),
		UniquePrompts:  len(r.active),
		Prompts:        make(map[string][]string, len(r.active)),
		ActiveVersions: make(map[string]string, len(r.active)),
	}
	for id, v := range r.active {
		st.Prompts[id] = r.versionsLocked(id)
		st.ActiveVersions[id] = v
	}
	for _, e := range r.experiments {
		if e.Active {
			st.ActiveExperiments++
		}
	}
	return st
}

// Replace swaps in the contents of next, keeping pinned active versions that
// still exist in next.
func (r *Registry) Replace(next *Registry) {
	next.mu.RLock()
	templates := next.templates
	active := make(map[string]string, len(next.active))
	for id, v := range next.active {
		active[id] = v
	}
	experiments := next.experiments
	next.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	pinned := make(map[string]bool)
	for id := range r.pinned {
		v := r.active[id]
		if _, ok := templates[id+":"+v]; ok {
			active[id] = v
			pinned[id] = true
		}
	}
	r.templates = templates
	r.active = active
	r.pinned = pinned
	r.experiments = experiments
}
