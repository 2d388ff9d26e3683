// Package api exposes the router over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kvasilopoulos/contact-center/internal/breaker"
	"github.com/kvasilopoulos/contact-center/internal/classifier"
	"github.com/kvasilopoulos/contact-center/internal/config"
	"github.com/kvasilopoulos/contact-center/internal/feedback"
	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/policy"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/ratelimit"
	"github.com/kvasilopoulos/contact-center/internal/telemetry"
	"github.com/kvasilopoulos/contact-center/internal/types"
	"github.com/kvasilopoulos/contact-center/internal/workflow"
)

const maxJSONBody = 1 << 20

// Classifier is the part of *classifier.Classifier the handlers use.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) classifier.Outcome
	ClassifyAudio(ctx context.Context, in classifier.AudioInput) classifier.Outcome
	RequiresHumanReview(confidence float64) bool
	Threshold() float64
}

// ReviewPolicy can force human review on top of the confidence threshold.
type ReviewPolicy interface {
	RequiresReview(ctx context.Context, in policy.Input) bool
}

// Dispatcher routes a classified message to its workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context, category types.Category, in workflow.Input) workflow.Result
}

// BackendStatus reports whether the primary backend has credentials.
type BackendStatus interface {
	PrimaryConfigured() bool
}

// Deps are the collaborators of the HTTP layer. Policy, Limiter, Metrics and
// Gatherer may be nil.
type Deps struct {
	Config     *config.Config
	Classifier Classifier
	Workflows  Dispatcher
	Policy     ReviewPolicy
	Feedback   feedback.Store
	Prompts    *prompts.Registry
	Breakers   *breaker.Group
	Backends   BackendStatus
	Limiter    ratelimit.Store
	Metrics    *telemetry.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	return &Handler{Deps: d, now: time.Now}
}

// NewRouter wires every route and middleware.
func NewRouter(d Deps) http.Handler {
	return NewHandler(d).Routes()
}

func (h *Handler) Routes() http.Handler {
	cfg := h.Config

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.RequestID)
	if h.Metrics != nil {
		r.Use(httpMetrics(h.Metrics))
	}
	if cfg.RateLimit.Enabled && h.Limiter != nil {
		r.Use(ratelimit.Middleware(h.Limiter, ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		}, h.Metrics))
	}

	r.Get("/health", h.Health)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/ready", h.Ready)

		r.Post("/classify", h.Classify)
		r.Post("/classify/audio", h.ClassifyAudio)
		r.Post("/classify/{requestID}/feedback", h.RecordFeedback)
		r.Get("/classify/{requestID}/feedback", h.GetFeedback)

		if cfg.Server.AdminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(adminAuth(cfg.Server.AdminToken))
				r.Get("/prompts", h.PromptStats)
				r.Put("/prompts/{promptID}/active", h.SetActivePrompt)
				r.Get("/breakers", h.BreakerStats)
				r.Post("/breakers/{name}/reset", h.ResetBreaker)
			})
		}
	})
	return r
}
