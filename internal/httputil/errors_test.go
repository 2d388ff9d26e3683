package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request", "test message", map[string]string{"field": "message"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error != "invalid_request" {
		t.Errorf("expected error 'invalid_request', got %q", resp.Error)
	}
	if resp.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Message)
	}
	if resp.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.RequestID)
	}
	if resp.Details == nil {
		t.Error("expected details to be present")
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "r", nil) }, http.StatusUnprocessableEntity, "validation_error"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequestError(w, "r", "bad") }, http.StatusBadRequest, "invalid_request"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorizedError(w, "r", "no") }, http.StatusUnauthorized, "unauthorized"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "r", "feedback_not_found", "missing") }, http.StatusNotFound, "feedback_not_found"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "r", "boom") }, http.StatusInternalServerError, "internal_error"},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailableError(w, "r", "classification_failed", "x") }, http.StatusServiceUnavailable, "classification_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("expected error %q, got %q", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestWriteRateLimitError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRateLimitError(w, 2)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["error"] != "rate_limit_exceeded" {
		t.Errorf("unexpected error field: %v", body["error"])
	}
	if body["message"] != "Too many requests. Please slow down." {
		t.Errorf("unexpected message: %v", body["message"])
	}
	if body["retry_after_seconds"] != float64(2) {
		t.Errorf("expected retry_after_seconds 2, got %v", body["retry_after_seconds"])
	}
	if len(body) != 3 {
		t.Errorf("expected exactly 3 fields, got %v", body)
	}
}
