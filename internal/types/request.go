package types

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Message      string         `json:"message"`
	Channel      Channel        `json:"channel"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ExperimentID string         `json:"experiment_id,omitempty"`
}

// Normalize applies defaults.
func (r *ClassifyRequest) Normalize() {
	if r.Channel == "" {
		r.Channel = ChannelChat
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
}

// Validate checks the request against maxLen characters.
func (r *ClassifyRequest) Validate(maxLen int) []FieldError {
	var errs []FieldError
	n := utf8.RuneCountInString(r.Message)
	switch {
	case strings.TrimSpace(r.Message) == "":
		errs = append(errs, FieldError{Field: "message", Message: "must not be empty"})
	case maxLen > 0 && n > maxLen:
		errs = append(errs, FieldError{Field: "message", Message: fmt.Sprintf("must be at most %d characters", maxLen)})
	}
	if _, ok := ParseChannel(string(r.Channel)); !ok {
		errs = append(errs, FieldError{Field: "channel", Message: "must be one of chat, voice, mail"})
	}
	return errs
}

// MaxFeedbackComment bounds FeedbackRequest.Comment.
const MaxFeedbackComment = 1000

// FeedbackRequest is the body of POST /api/v1/classify/{id}/feedback.
type FeedbackRequest struct {
	Correct          *bool    `json:"correct"`
	ExpectedCategory Category `json:"expected_category,omitempty"`
	Comment          string   `json:"comment,omitempty"`
}

func (r *FeedbackRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Correct == nil {
		errs = append(errs, FieldError{Field: "correct", Message: "is required"})
	}
	if r.ExpectedCategory != "" {
		if _, ok := ParseCategory(string(r.ExpectedCategory)); !ok {
			errs = append(errs, FieldError{Field: "expected_category", Message: "must be one of informational, service_action, safety_compliance"})
		}
	}
	if utf8.RuneCountInString(r.Comment) > MaxFeedbackComment {
		errs = append(errs, FieldError{Field: "comment", Message: fmt.Sprintf("must be at most %d characters", MaxFeedbackComment)})
	}
	return errs
}
