package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kvasilopoulos/contact-center/internal/feedback"
	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

// RecordFeedback handles POST /api/v1/classify/{requestID}/feedback
func (h *Handler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())
	target := chi.URLParam(r, "requestID")

	if h.Feedback == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "feedback_unavailable", "Feedback store is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	var req types.FeedbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httputil.WriteValidationError(w, reqID, errs)
		return
	}

	fb := feedback.New(target, *req.Correct, string(req.ExpectedCategory), req.Comment)
	if err := fb.Validate(); err != nil {
		var ve *feedback.ValidationError
		if errors.As(err, &ve) {
			httputil.WriteValidationError(w, reqID, ve.Fields)
			return
		}
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	if err := h.Feedback.Save(r.Context(), fb); err != nil {
		h.Logger.Error("failed to save feedback", "request_id", reqID, "target_request_id", target, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to record feedback")
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordFeedback(fb.Correct)
	}

	h.Logger.Info("feedback recorded",
		"request_id", reqID,
		"target_request_id", target,
		"feedback_id", fb.ID,
		"correct", fb.Correct,
		"expected_category", fb.ExpectedCategory,
	)
	httputil.WriteJSON(w, http.StatusOK, types.FeedbackResponse{
		RequestID:  target,
		FeedbackID: fb.ID,
		Recorded:   true,
	})
}

// GetFeedback handles GET /api/v1/classify/{requestID}/feedback
func (h *Handler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())
	target := chi.URLParam(r, "requestID")

	if h.Feedback == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "feedback_unavailable", "Feedback store is not configured")
		return
	}

	fb, err := h.Feedback.Get(r.Context(), target)
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		httputil.WriteNotFoundError(w, reqID, "feedback_not_found", "No feedback recorded for request "+target)
	case err != nil:
		h.Logger.Error("failed to load feedback", "request_id", reqID, "target_request_id", target, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load feedback")
	default:
		httputil.WriteJSON(w, http.StatusOK, fb)
	}
}
