package types

import "time"

// NextStep is the operational action chosen by a workflow.
type NextStep struct {
	Action              string         `json:"action"`
	Description         string         `json:"description"`
	Priority            Priority       `json:"priority"`
	RequiresHumanReview bool           `json:"requires_human_review"`
	ExternalSystem      *string        `json:"external_system"`
	Data                map[string]any `json:"data"`
}

// ClassifyResponse is returned by the classify endpoints.
type ClassifyResponse struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Category         Category  `json:"category"`
	Confidence       float64   `json:"confidence"`
	DecisionPath     string    `json:"decision_path"`
	NextStep         NextStep  `json:"next_step"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	PromptVersion    string    `json:"prompt_version,omitempty"`
	PromptVariant    string    `json:"prompt_variant,omitempty"`
	Model            string    `json:"model,omitempty"`
}

type FeedbackResponse struct {
	RequestID  string `json:"request_id"`
	FeedbackID string `json:"feedback_id"`
	Recorded   bool   `json:"recorded"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Environment string          `json:"environment"`
	Checks      map[string]bool `json:"checks"`
}
