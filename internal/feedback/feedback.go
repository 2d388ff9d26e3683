package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kvasilopoulos/contact-center/internal/types"
)

// MaxCommentLength bounds the free-text comment, in characters.
const MaxCommentLength = 1000

var ErrNotFound = errors.New("feedback not found")

// Feedback is an operator's verdict on one classification. There is at most
// one entry per request; saving again replaces it.
type Feedback struct {
	ID               string    `json:"feedback_id"`
	RequestID        string    `json:"request_id"`
	Correct          bool      `json:"correct"`
	ExpectedCategory string    `json:"expected_category,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// New stamps an id and creation time.
func New(requestID string, correct bool, expected, comment string) Feedback {
	return Feedback{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		Correct:          correct,
		ExpectedCategory: expected,
		Comment:          comment,
		CreatedAt:        time.Now().UTC(),
	}
}

// FieldError describes one invalid field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid feedback: %d field(s)", len(e.Fields))
}

// Validate checks the request id, expected category and comment length.
func (f Feedback) Validate() error {
	var fields []FieldError
	if f.RequestID == "" {
		fields = append(fields, FieldError{Field: "request_id", Reason: "required"})
	}
	if f.ExpectedCategory != "" {
		if _, ok := types.ParseCategory(f.ExpectedCategory); !ok {
			fields = append(fields, FieldError{Field: "expected_category", Reason: "must be one of informational, service_action, safety_compliance"})
		}
	}
	if utf8.RuneCountInString(f.Comment) > MaxCommentLength {
		fields = append(fields, FieldError{Field: "comment", Reason: fmt.Sprintf("must be at most %d characters", MaxCommentLength)})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Store persists feedback.
type Store interface {
	Save(ctx context.Context, f Feedback) error
	Get(ctx context.Context, requestID string) (Feedback, error)
	// Purge deletes entries created before the cutoff and returns how many
	// were removed.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it supports it. In-process stores are always ready.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
