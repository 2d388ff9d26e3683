package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

type setActiveRequest struct {
	Version string `json:"version"`
}

// PromptStats handles GET /api/v1/admin/prompts
func (h *Handler) PromptStats(w http.ResponseWriter, r *http.Request) {
	if h.Prompts == nil {
		httputil.WriteJSON(w, http.StatusOK, prompts.Stats{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.Prompts.Stats())
}

// SetActivePrompt handles PUT /api/v1/admin/prompts/{promptID}/active
func (h *Handler) SetActivePrompt(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "promptID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	var req setActiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Version == "" {
		httputil.WriteValidationError(w, reqID, []types.FieldError{{Field: "version", Message: "is required"}})
		return
	}
	if h.Prompts == nil {
		httputil.WriteNotFoundError(w, reqID, "prompt_not_found", "No prompt registry loaded")
		return
	}

	if err := h.Prompts.SetActive(id, req.Version); err != nil {
		if prompts.IsNotFound(err) {
			httputil.WriteNotFoundError(w, reqID, "prompt_not_found", err.Error())
			return
		}
		httputil.WriteInternalError(w, reqID, err.Error())
		return
	}

	h.Logger.Info("active prompt version changed", "request_id", reqID, "prompt_id", id, "prompt_version", req.Version)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"prompt_id": id, "active_version": req.Version})
}

// BreakerStats handles GET /api/v1/admin/breakers
func (h *Handler) BreakerStats(w http.ResponseWriter, r *http.Request) {
	if h.Breakers == nil {
		httputil.WriteJSON(w, http.StatusOK, []any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.Breakers.Stats())
}

// ResetBreaker handles POST /api/v1/admin/breakers/{name}/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	if h.Breakers == nil {
		httputil.WriteNotFoundError(w, reqID, "breaker_not_found", "unknown circuit breaker "+name)
		return
	}
	if err := h.Breakers.Reset(name); err != nil {
		httputil.WriteNotFoundError(w, reqID, "breaker_not_found", err.Error())
		return
	}

	h.Logger.Warn("circuit breaker reset by operator", "request_id", reqID, "breaker", name)
	b, _ := h.Breakers.Lookup(name)
	httputil.WriteJSON(w, http.StatusOK, b.Stats())
}
