// Package llm defines the capability interfaces the classifier depends on and
// the error vocabulary shared by every backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Request is a single text completion request.
type Request struct {
	Model          string
	SystemPrompt   string
	UserPrompt     string
	Temperature    float64
	MaxTokens      int
	ResponseFormat string
	Schema         *JSONSchema
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the raw model output.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Backend completes text prompts.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// AudioRequest carries 24kHz mono PCM16 audio for classification.
type AudioRequest struct {
	Model        string
	Instructions string
	Channel      string
	PCM          []byte
}

// AudioBackend classifies spoken audio.
type AudioBackend interface {
	Name() string
	ClassifyAudio(ctx context.Context, req AudioRequest) (Response, error)
}

var (
	// ErrParse marks model output that could not be decoded.
	ErrParse = errors.New("unparseable model output")
	// ErrRefusal marks a model refusal.
	ErrRefusal = errors.New("model refused to answer")
	// ErrNotConfigured is returned when a backend has no credentials.
	ErrNotConfigured = errors.New("backend not configured")
)

// BackendError wraps a provider failure. Transient errors are retried.
type BackendError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// StatusTransient reports whether an HTTP status is worth retrying.
func StatusTransient(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// IsOutputError reports whether err means the backend answered but the
// answer was unusable.
func IsOutputError(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrRefusal)
}
