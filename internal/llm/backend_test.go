package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"transient backend", &BackendError{Provider: "openai", StatusCode: 503, Transient: true, Err: errors.New("unavailable")}, true},
		{"permanent backend", &BackendError{Provider: "openai", StatusCode: 400, Err: errors.New("bad request")}, false},
		{"wrapped transient", fmt.Errorf("call: %w", &BackendError{Transient: true, Err: errors.New("x")}), true},
		{"parse", ErrParse, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatusTransient(t *testing.T) {
	for code, want := range map[int]bool{200: false, 400: false, 401: false, 408: true, 429: true, 500: true, 502: true, 503: true} {
		if got := StatusTransient(code); got != want {
			t.Errorf("StatusTransient(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Classification
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"category":"service_action","confidence":0.92,"reasoning":"refund request"}`,
			want:    Classification{Category: "service_action", Confidence: 0.92, Reasoning: "refund request"},
		},
		{
			name:    "fenced json with prose",
			content: "Here you go:\n```json\n{\"category\": \"Informational\", \"confidence\": 0.7, \"reasoning\": \"hours\"}\n```",
			want:    Classification{Category: "informational", Confidence: 0.7, Reasoning: "hours"},
		},
		{name: "not json", content: "I cannot help with that", wantErr: true},
		{name: "broken json", content: `{"category": }`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClassification(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("expected ErrParse, got %v", err)
				}
				if !IsOutputError(err) {
					t.Error("parse errors are output errors")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassificationSchema(t *testing.T) {
	s := ClassificationSchema()
	if s.Name != "classification_response" || !s.Strict {
		t.Errorf("unexpected schema header: %+v", s)
	}
	props := s.Schema["properties"].(map[string]any)
	cat := props["category"].(map[string]any)
	if enum := cat["enum"].([]string); len(enum) != 3 {
		t.Errorf("expected 3 categories, got %v", enum)
	}
	if s.Schema["additionalProperties"] != false {
		t.Error("expected additionalProperties false")
	}
}
