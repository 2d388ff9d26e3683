package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/feedback"
	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

const readyTimeout = 2 * time.Second

// Health handles GET /health and GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, types.HealthResponse{
		Status:      "healthy",
		Version:     h.Config.App.Version,
		Environment: h.Config.App.Environment,
		Checks:      map[string]bool{"api": true},
	})
}

// Ready handles GET /api/v1/ready. It always answers 200 and reports
// "degraded" when a dependency check fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]bool{
		"backend_configured": h.Backends != nil && h.Backends.PrimaryConfigured(),
		"prompts_loaded":     h.Prompts != nil && h.Prompts.Stats().TotalTemplates > 0,
		"circuit_closed":     h.Breakers == nil || h.Breakers.AllClosed(),
		"feedback_store":     h.Feedback != nil && feedback.Ping(ctx, h.Feedback) == nil,
	}

	status := "healthy"
	for name, ok := range checks {
		if !ok {
			status = "degraded"
			h.Logger.Warn("readiness check failed", "check", name)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, types.HealthResponse{
		Status:      status,
		Version:     h.Config.App.Version,
		Environment: h.Config.App.Environment,
		Checks:      checks,
	})
}
