// Package classifier turns a customer message into a routing category by
// rendering a versioned prompt and calling a model backend through a circuit
// breaker.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/breaker"
	"github.com/kvasilopoulos/contact-center/internal/llm"
	"github.com/kvasilopoulos/contact-center/internal/pii"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/telemetry"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

const (
	// DefaultConfidence is assigned to soft-defaulted results.
	DefaultConfidence = 0.3
	// DefaultCategory is assigned to soft-defaulted results.
	DefaultCategory = types.CategoryServiceAction
	// MaxReasoningLength bounds Result.Reasoning, in runes.
	MaxReasoningLength = 500

	previewLength = 100
)

type Config struct {
	PromptID               string
	AudioPromptID          string
	DefaultModel           string
	DefaultAudioModel      string
	MinConfidenceThreshold float64
	Retry                  RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		PromptID:               "classification",
		AudioPromptID:          "classification_audio",
		DefaultModel:           "gpt-4.1",
		DefaultAudioModel:      "gpt-4o-realtime-preview",
		MinConfidenceThreshold: 0.5,
		Retry:                  DefaultRetryPolicy(),
	}
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithAudioBackend enables ClassifyAudio.
func WithAudioBackend(b llm.AudioBackend) Option {
	return func(c *Classifier) { c.audio = b }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithSleep replaces the retry backoff sleep. Used by tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Classifier) { c.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// Classifier is stateless per call and safe for concurrent use.
type Classifier struct {
	cfg      Config
	registry *prompts.Registry
	backend  llm.Backend
	audio    llm.AudioBackend
	breakers *breaker.Group
	redactor *pii.Redactor
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a classifier. One breaker per backend name is taken from
// breakers.
func New(cfg Config, registry *prompts.Registry, backend llm.Backend, breakers *breaker.Group, opts ...Option) *Classifier {
	d := DefaultConfig()
	if cfg.PromptID == "" {
		cfg.PromptID = d.PromptID
	}
	if cfg.AudioPromptID == "" {
		cfg.AudioPromptID = d.AudioPromptID
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = d.DefaultModel
	}
	if cfg.DefaultAudioModel == "" {
		cfg.DefaultAudioModel = d.DefaultAudioModel
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = d.Retry
	}
	c := &Classifier{
		cfg:      cfg,
		registry: registry,
		backend:  backend,
		breakers: breakers,
		redactor: pii.NewRedactor(),
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Input is one text message to classify.
type Input struct {
	Message      string
	Channel      types.Channel
	ExperimentID string
}

// RequiresHumanReview reports whether confidence is below the configured
// threshold.
func (c *Classifier) RequiresHumanReview(confidence float64) bool {
	return confidence < c.cfg.MinConfidenceThreshold
}

// Threshold returns the configured human-review threshold.
func (c *Classifier) Threshold() float64 {
	return c.cfg.MinConfidenceThreshold
}

// Classify classifies a text message. It never panics on bad model output:
// unusable answers come back as KindSoftDefault.
func (c *Classifier) Classify(ctx context.Context, in Input) Outcome {
	start := c.now()

	tmpl, sel, err := c.registry.GetForExperiment(c.cfg.PromptID, in.ExperimentID)
	if err != nil {
		c.logger.Error("prompt lookup failed",
			"prompt_id", c.cfg.PromptID,
			"experiment_id", in.ExperimentID,
			"error", err,
		)
		return c.finish(start, sel, failed(FailureValidation, err))
	}

	user, err := tmpl.RenderUserPrompt(map[string]any{
		"channel": string(in.Channel),
		"message": in.Message,
	})
	if err != nil {
		c.logger.Error("prompt render failed",
			"prompt_id", tmpl.ID,
			"prompt_version", tmpl.Version,
			"error", err,
		)
		return c.finish(start, sel, failed(FailureValidation, err))
	}

	sel.Model = resolveModel(sel.Model, tmpl.LLMConfig.Model, c.cfg.DefaultModel)
	req := llm.Request{
		Model:          sel.Model,
		SystemPrompt:   tmpl.SystemPrompt,
		UserPrompt:     user,
		Temperature:    tmpl.LLMConfig.Temperature,
		MaxTokens:      tmpl.LLMConfig.MaxTokens,
		ResponseFormat: tmpl.LLMConfig.ResponseFormat,
	}
	if req.ResponseFormat == "json_schema" {
		req.Schema = llm.ClassificationSchema()
	}

	c.logger.Debug("classifying message",
		"channel", in.Channel,
		"prompt_version", sel.Version,
		"prompt_variant", sel.Variant,
		"model", sel.Model,
		"message_preview", c.redactor.Preview(in.Message, previewLength),
	)

	call := func(ctx context.Context) (llm.Response, error) {
		return c.backend.Complete(ctx, req)
	}
	return c.finish(start, sel, c.run(ctx, c.backend.Name(), call))
}

// run calls the backend through its breaker with retries inside, then
// decodes the answer. Output errors are recorded as breaker successes since
// the dependency itself responded.
func (c *Classifier) run(ctx context.Context, backend string, call func(context.Context) (llm.Response, error)) Outcome {
	var (
		answer    llm.Classification
		outputErr error
	)
	err := c.breakers.Get(backend).Execute(ctx, func(ctx context.Context) error {
		var resp llm.Response
		err := c.retry(ctx, backend, func(ctx context.Context) error {
			var err error
			resp, err = call(ctx)
			return err
		})
		if err == nil {
			answer, err = llm.DecodeClassification(resp.Content)
		}
		if llm.IsOutputError(err) {
			outputErr = err
			return nil
		}
		return err
	})

	var oe *breaker.OpenError
	switch {
	case errors.As(err, &oe):
		c.logger.Warn("circuit breaker open, classification unavailable",
			"backend", backend,
			"state", oe.State.String(),
			"retry_after_s", oe.RetryAfter.Seconds(),
		)
		return unavailable(oe.RetryAfter, err)
	case err != nil:
		c.logger.Error("classification failed", "backend", backend, "error", err)
		return failed(FailureClassification, err)
	case outputErr != nil:
		c.logger.Warn("unusable model output, defaulting",
			"backend", backend,
			"error", outputErr,
		)
		return softDefault(Result{
			Category:   DefaultCategory,
			Confidence: DefaultConfidence,
			Reasoning:  fmt.Sprintf("Classification failed: %v. Defaulting to %s.", outputErr, DefaultCategory),
		})
	}

	category, valid := types.ParseCategory(answer.Category)
	if !valid {
		c.logger.Warn("invalid category returned by model",
			"backend", backend,
			"category", answer.Category,
		)
		return softDefault(Result{
			Category:   DefaultCategory,
			Confidence: DefaultConfidence,
			Reasoning:  fmt.Sprintf("Original category '%s' was invalid, defaulting to %s", answer.Category, DefaultCategory),
		})
	}

	reasoning := answer.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	return ok(Result{
		Category:   category,
		Confidence: clamp(answer.Confidence),
		Reasoning:  reasoning,
	})
}

// finish stamps prompt metadata and timing on usable outcomes and records
// metrics.
func (c *Classifier) finish(start time.Time, sel prompts.Selection, o Outcome) Outcome {
	elapsed := c.now().Sub(start)
	if o.Usable() {
		o.Result.Reasoning = truncateRunes(o.Result.Reasoning, MaxReasoningLength)
		o.Result.ProcessingTime = elapsed
		o.Result.PromptID = sel.PromptID
		o.Result.PromptVersion = sel.Version
		o.Result.PromptVariant = sel.Variant
		o.Result.ExperimentID = sel.ExperimentID
		o.Result.Model = sel.Model

		c.logger.Info("message classified",
			"category", o.Result.Category,
			"confidence", o.Result.Confidence,
			"outcome", o.Kind.String(),
			"processing_time_ms", o.Result.ProcessingTimeMs(),
			"prompt_version", sel.Version,
			"prompt_variant", sel.Variant,
			"model", sel.Model,
		)
	}

	if c.metrics != nil {
		category := string(o.Result.Category)
		if category == "" {
			category = "none"
		}
		c.metrics.RecordClassification(telemetry.ClassificationLabels{
			Category:   category,
			Outcome:    o.Kind.String(),
			Variant:    sel.Variant,
			DurationMs: float64(elapsed.Microseconds()) / 1000,
		})
	}
	return o
}

func resolveModel(variant, template, fallback string) string {
	switch {
	case variant != "":
		return variant
	case template != "":
		return template
	default:
		return fallback
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
