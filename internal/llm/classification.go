package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kvasilopoulos/contact-center/internal/types"
)

// Classification is the decoded model answer. Category is kept raw so the
// caller can report out-of-domain values.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DecodeClassification parses model output into a Classification. Prose or
// code fences around the JSON object are tolerated.
func DecodeClassification(content string) (Classification, error) {
	var c Classification
	raw := extractJSONObject(content)
	if raw == "" {
		return c, fmt.Errorf("%w: no JSON object in %q", ErrParse, truncate(content, 200))
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrParse, err)
	}
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	return c, nil
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// JSONSchema is an OpenAI structured output schema.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// ClassificationSchema returns the strict schema for classification answers.
func ClassificationSchema() *JSONSchema {
	cats := make([]string, 0, 3)
	for _, c := range types.Categories() {
		cats = append(cats, string(c))
	}
	return &JSONSchema{
		Name:   "classification_response",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"enum":        cats,
					"description": "The category of the customer message",
				},
				"confidence": map[string]any{
					"type":        "number",
					"minimum":     0,
					"maximum":     1,
					"description": "Confidence score between 0 and 1",
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "Brief explanation of why this category was chosen",
				},
			},
			"required":             []string{"category", "confidence", "reasoning"},
			"additionalProperties": false,
		},
	}
}
