package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kvasilopoulos/contact-center/internal/classifier"
	"github.com/kvasilopoulos/contact-center/internal/httputil"
	"github.com/kvasilopoulos/contact-center/internal/policy"
	"github.com/kvasilopoulos/contact-center/internal/types"
	"github.com/kvasilopoulos/contact-center/internal/workflow"
)

// Classify handles POST /api/v1/classify
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}

	var req types.ClassifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	req.Normalize()
	if errs := req.Validate(h.Config.Classification.MaxMessageLength); len(errs) > 0 {
		httputil.WriteValidationError(w, reqID, errs)
		return
	}

	h.Logger.Info("classification request received",
		"request_id", reqID,
		"channel", req.Channel,
		"message_length", len([]rune(req.Message)),
		"experiment_id", req.ExperimentID,
	)

	outcome := h.Classifier.Classify(r.Context(), classifier.Input{
		Message:      req.Message,
		Channel:      req.Channel,
		ExperimentID: req.ExperimentID,
	})
	if !outcome.Usable() {
		h.writeOutcomeError(w, reqID, outcome)
		return
	}

	resp := h.route(r.Context(), reqID, outcome.Result, workflow.Input{
		Message:    req.Message,
		Confidence: outcome.Result.Confidence,
		Channel:    req.Channel,
		Metadata:   req.Metadata,
	})
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ClassifyAudio handles POST /api/v1/classify/audio. The body is the raw
// recording.
func (h *Handler) ClassifyAudio(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())

	channel := types.ChannelVoice
	if raw := r.URL.Query().Get("channel"); raw != "" {
		c, ok := types.ParseChannel(raw)
		if !ok {
			httputil.WriteValidationError(w, reqID, []types.FieldError{
				{Field: "channel", Message: "must be one of chat, voice, mail"},
			})
			return
		}
		channel = c
	}

	limit := h.Config.Server.MaxAudioBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, reqID, http.StatusRequestEntityTooLarge, "payload_too_large",
				"Audio exceeds "+strconv.FormatInt(limit, 10)+" bytes", nil)
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		httputil.WriteValidationError(w, reqID, []types.FieldError{
			{Field: "audio", Message: "must not be empty"},
		})
		return
	}

	h.Logger.Info("audio classification request received",
		"request_id", reqID,
		"channel", channel,
		"audio_bytes", len(data),
	)

	outcome := h.Classifier.ClassifyAudio(r.Context(), classifier.AudioInput{Audio: data, Channel: channel})
	switch {
	case errors.Is(outcome.Err, classifier.ErrAudioUnsupported):
		httputil.WriteError(w, reqID, http.StatusUnsupportedMediaType, "unsupported_audio_format", outcome.Err.Error(), nil)
		return
	case errors.Is(outcome.Err, classifier.ErrAudioInvalid):
		httputil.WriteError(w, reqID, http.StatusUnprocessableEntity, "invalid_audio", outcome.Err.Error(), nil)
		return
	}
	if !outcome.Usable() {
		h.writeOutcomeError(w, reqID, outcome)
		return
	}

	// No transcript exists, so workflows match against the model's reasoning.
	resp := h.route(r.Context(), reqID, outcome.Result, workflow.Input{
		Message:    outcome.Result.Reasoning,
		Confidence: outcome.Result.Confidence,
		Channel:    channel,
		Metadata:   map[string]any{"source": "audio"},
	})
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// route runs the workflow for a usable result and assembles the response.
func (h *Handler) route(ctx context.Context, reqID string, res classifier.Result, in workflow.Input) types.ClassifyResponse {
	wf := h.Workflows.Dispatch(ctx, res.Category, in)

	review := h.Classifier.RequiresHumanReview(res.Confidence)
	if !review && h.Policy != nil {
		review = h.Policy.RequiresReview(ctx, policy.Input{
			Category:   string(res.Category),
			Confidence: res.Confidence,
			Action:     wf.Action,
			Priority:   string(wf.Priority),
			Channel:    string(in.Channel),
			Threshold:  h.Classifier.Threshold(),
		})
	}
	if h.Metrics != nil {
		h.Metrics.RecordWorkflowAction(string(res.Category), wf.Action)
	}

	var external *string
	if wf.ExternalSystem != "" {
		external = &wf.ExternalSystem
	}

	h.Logger.Info("classification completed",
		"request_id", reqID,
		"category", res.Category,
		"confidence", res.Confidence,
		"action", wf.Action,
		"priority", wf.Priority,
		"requires_human_review", review,
		"prompt_version", res.PromptVersion,
		"prompt_variant", res.PromptVariant,
		"processing_time_ms", res.ProcessingTimeMs(),
	)

	return types.ClassifyResponse{
		RequestID:    reqID,
		Timestamp:    h.now().UTC(),
		Category:     res.Category,
		Confidence:   res.Confidence,
		DecisionPath: res.Reasoning,
		NextStep: types.NextStep{
			Action:              wf.Action,
			Description:         wf.Description,
			Priority:            wf.Priority,
			RequiresHumanReview: review,
			ExternalSystem:      external,
			Data:                wf.Data,
		},
		ProcessingTimeMs: res.ProcessingTimeMs(),
		PromptVersion:    res.PromptVersion,
		PromptVariant:    res.PromptVariant,
		Model:            res.Model,
	}
}

func (h *Handler) writeOutcomeError(w http.ResponseWriter, reqID string, o classifier.Outcome) {
	err := classifier.AsError(o)

	var unavailable *classifier.ServiceUnavailableError
	var invalid *classifier.ValidationError
	switch {
	case errors.As(err, &unavailable):
		h.Logger.Warn("classification rejected, breaker open", "request_id", reqID, "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(unavailable.RetryAfterSeconds()))
		httputil.WriteServiceUnavailableError(w, reqID, "service_unavailable",
			"Classification service temporarily unavailable. Please retry later.")
	case errors.As(err, &invalid):
		h.Logger.Error("classification configuration error", "request_id", reqID, "error", err)
		httputil.WriteError(w, reqID, http.StatusInternalServerError, "configuration_error",
			"Classification is misconfigured.", nil)
	default:
		h.Logger.Error("classification failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "classification_failed",
			"Unable to classify message. Please try again later.")
	}
}
