// Package policy decides, through OPA, whether a routed request needs a
// human to look at it.
package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed default.rego
var defaultModule string

const reviewQuery = "[data.contactcenter.review.required, data.contactcenter.review.reasons]"

// Input is the document the review policy is evaluated against.
type Input struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
	Priority   string  `json:"priority"`
	Channel    string  `json:"channel"`
	Threshold  float64 `json:"threshold"`
}

// Decision is the policy verdict.
type Decision struct {
	Required bool
	Reasons  []string
}

// Evaluator evaluates the review policy.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	modules  int

	timeout time.Duration
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator with the built-in module compiled.
func NewEvaluator(timeout time.Duration, logger *slog.Logger) (*Evaluator, error) {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{timeout: timeout, logger: logger}
	if err := e.LoadFromModules(map[string]string{"default.rego": defaultModule}); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadRegoFiles reads all .rego files from the given directory.
func LoadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}

// Load replaces the built-in module with the .rego files in dir. A missing
// or empty directory keeps the current policy.
func (e *Evaluator) Load(dir string) error {
	modules, err := LoadRegoFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Info("no policy directory, using built-in review policy", "path", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		e.logger.Warn("no rego files found, using built-in review policy", "path", dir)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	e.logger.Info("review policies loaded", "path", dir, "modules", len(modules))
	return nil
}

// LoadFromModules compiles the given module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(reviewQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.modules = len(modules)
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against in.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return Decision{}, errors.New("no review policy loaded")
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(in))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate review policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, errors.New("review policy produced no result")
	}

	// Result is [required, reasons]
	arr, ok := results[0].Expressions[0].Value.([]any)
	if !ok || len(arr) < 2 {
		return Decision{}, errors.New("unexpected review policy result format")
	}

	var d Decision
	d.Required, _ = arr[0].(bool)
	if rs, ok := arr[1].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
		sort.Strings(d.Reasons)
	}
	return d, nil
}

// RequiresReview evaluates the policy and falls back to the confidence
// threshold when evaluation fails.
func (e *Evaluator) RequiresReview(ctx context.Context, in Input) bool {
	d, err := e.Evaluate(ctx, in)
	if err != nil {
		e.logger.Error("review policy evaluation failed, applying threshold rule",
			"error", err,
			"category", in.Category,
		)
		return in.Confidence < in.Threshold
	}
	if d.Required {
		e.logger.Debug("review policy requires human review", "reasons", d.Reasons, "category", in.Category)
	}
	return d.Required
}
