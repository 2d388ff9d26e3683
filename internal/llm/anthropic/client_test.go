package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kvasilopoulos/contact-center/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL}, srv.Client())
}

func TestComplete_ReturnsTextBlock(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"content": [{"type": "text", "text": "{\"category\":\"safety_compliance\",\"confidence\":0.95,\"reasoning\":\"rash\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`))
	})

	resp, err := client.Complete(context.Background(), llm.Request{
		Model:        "gpt-4.1",
		SystemPrompt: "classify",
		UserPrompt:   "I have a rash",
		MaxTokens:    300,
		Schema:       llm.ClassificationSchema(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("expected 20 tokens, got %d", resp.Usage.TotalTokens)
	}
	c, err := llm.DecodeClassification(resp.Content)
	if err != nil || c.Category != "safety_compliance" {
		t.Errorf("unexpected classification %+v (%v)", c, err)
	}
	if body["model"] != DefaultModel {
		t.Errorf("expected non-Claude model mapped to %s, got %v", DefaultModel, body["model"])
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{429, true},
		{500, true},
		{529, true},
		{400, false},
		{401, false},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		})
		_, err := client.Complete(context.Background(), llm.Request{Model: "claude-haiku-4-5"})
		var be *llm.BackendError
		if !errors.As(err, &be) {
			t.Fatalf("status %d: expected BackendError, got %v", tt.status, err)
		}
		if be.StatusCode != tt.status {
			t.Errorf("expected status %d, got %d", tt.status, be.StatusCode)
		}
		if llm.IsTransient(err) != tt.wantTransient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, !tt.wantTransient, tt.wantTransient)
		}
	}
}

func TestComplete_NotConfigured(t *testing.T) {
	client := New(Config{}, nil)
	if _, err := client.Complete(context.Background(), llm.Request{}); !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestModelMapping(t *testing.T) {
	client := New(Config{APIKey: "k", Model: "claude-haiku-4-5"}, nil)
	if got := client.model("claude-opus-4-1"); got != "claude-opus-4-1" {
		t.Errorf("expected Claude model passed through, got %s", got)
	}
	if got := client.model("gpt-4.1"); got != "claude-haiku-4-5" {
		t.Errorf("expected fallback to configured model, got %s", got)
	}
}
