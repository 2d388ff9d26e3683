package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// RateLimitResponse is the body of a 429 rejection.
type RateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, code, message string, details any) {
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	WriteJSON(w, statusCode, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}

func WriteValidationError(w http.ResponseWriter, requestID string, details any) {
	WriteError(w, requestID, http.StatusUnprocessableEntity, "validation_error", "Request validation failed", details)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request", message, nil)
}

func WriteUnauthorizedError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "unauthorized", message, nil)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, code, message string) {
	WriteError(w, requestID, http.StatusNotFound, code, message, nil)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "internal_error", message, nil)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, code, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, code, message, nil)
}

// WriteRateLimitError writes the 429 body. Callers set Retry-After and the
// X-RateLimit-* headers first.
func WriteRateLimitError(w http.ResponseWriter, retryAfterSeconds int) {
	WriteJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error:             "rate_limit_exceeded",
		Message:           "Too many requests. Please slow down.",
		RetryAfterSeconds: retryAfterSeconds,
	})
}
