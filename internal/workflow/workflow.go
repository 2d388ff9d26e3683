package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kvasilopoulos/contact-center/internal/pii"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

// EscalationThreshold is the confidence below which informational and
// service action messages go straight to an agent.
const EscalationThreshold = 0.5

// Input is a classified message handed to a workflow.
type Input struct {
	Message    string
	Confidence float64
	Channel    types.Channel
	Metadata   map[string]any
}

// Result is the next step a workflow recommends.
type Result struct {
	Action         string
	Description    string
	Priority       types.Priority
	ExternalSystem string
	Data           map[string]any
}

// Workflow handles the post-classification logic for one category.
type Workflow interface {
	Category() types.Category
	Execute(ctx context.Context, in Input) Result
}

// RequiresEscalation reports whether confidence is too low to act on.
func RequiresEscalation(confidence float64) bool {
	return confidence < EscalationThreshold
}

func lowConfidence(category types.Category, description string) Result {
	return Result{
		Action:         "escalate_to_agent",
		Description:    description,
		Priority:       types.PriorityMedium,
		ExternalSystem: "agent_queue",
		Data: map[string]any{
			"reason":            "low_confidence",
			"original_category": string(category),
		},
	}
}

// Dispatcher routes a category to its workflow.
type Dispatcher struct {
	workflows map[types.Category]Workflow
	logger    *slog.Logger
}

// NewDispatcher registers workflows by category. A later workflow for the
// same category replaces an earlier one.
func NewDispatcher(logger *slog.Logger, workflows ...Workflow) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{workflows: make(map[types.Category]Workflow, len(workflows)), logger: logger}
	for _, w := range workflows {
		d.workflows[w.Category()] = w
	}
	return d
}

// NewDefault wires the three built-in workflows.
func NewDefault(redactor *pii.Redactor, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return NewDispatcher(logger,
		NewInformational(nil, logger),
		NewServiceAction(logger),
		NewSafety(redactor, notifier, logger),
	)
}

// Lookup returns the workflow registered for category.
func (d *Dispatcher) Lookup(category types.Category) (Workflow, bool) {
	w, ok := d.workflows[category]
	return w, ok
}

// Categories returns the registered categories, sorted.
func (d *Dispatcher) Categories() []types.Category {
	out := make([]types.Category, 0, len(d.workflows))
	for c := range d.workflows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs the workflow for category. Unknown categories go to a human
// agent.
func (d *Dispatcher) Dispatch(ctx context.Context, category types.Category, in Input) Result {
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	w, ok := d.workflows[category]
	if !ok {
		d.logger.Warn("no workflow for category", "category", string(category))
		return Result{
			Action:         "escalate_to_agent",
			Description:    "Unknown category - routing to human agent",
			Priority:       types.PriorityMedium,
			ExternalSystem: "agent_queue",
			Data:           map[string]any{"reason": "unknown_category", "category": string(category)},
		}
	}

	res := w.Execute(ctx, in)
	d.logger.Debug("workflow executed",
		"category", string(category),
		"action", res.Action,
		"priority", string(res.Priority),
	)
	return res
}

// metaString returns metadata[key] as a string, or "" when absent.
func metaString(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// nullable maps "" to nil so it encodes as JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
