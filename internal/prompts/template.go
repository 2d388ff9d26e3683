package prompts

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Parameter declares a variable the user prompt template expects.
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// LLMConfig carries per-template model settings.
type LLMConfig struct {
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	ResponseFormat string  `yaml:"response_format" json:"response_format"`
	Model          string  `yaml:"model" json:"model,omitempty"`
}

// DefaultLLMConfig returns the settings used when a template omits them.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature:    0.0,
		MaxTokens:      500,
		ResponseFormat: "json_object",
	}
}

type Metadata struct {
	Author      string   `yaml:"author" json:"author,omitempty"`
	Created     string   `yaml:"created" json:"created,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	Changes     []string `yaml:"changes" json:"changes,omitempty"`
}

// Template is a versioned prompt. It is immutable once registered.
type Template struct {
	ID                 string      `yaml:"id" json:"id"`
	Version            string      `yaml:"version" json:"version"`
	SystemPrompt       string      `yaml:"system_prompt" json:"system_prompt"`
	UserPromptTemplate string      `yaml:"user_prompt_template" json:"user_prompt_template"`
	Parameters         []Parameter `yaml:"parameters" json:"parameters"`
	LLMConfig          LLMConfig   `yaml:"llm_config" json:"llm_config"`
	Metadata           Metadata    `yaml:"metadata" json:"metadata"`

	compiled *pongo2.Template
}

// Key returns the registry key "id:version".
func (t *Template) Key() string {
	return t.ID + ":" + t.Version
}

// MissingFields returns the names of required fields that are empty.
func (t *Template) MissingFields() []string {
	var missing []string
	if t.ID == "" {
		missing = append(missing, "id")
	}
	if t.Version == "" {
		missing = append(missing, "version")
	}
	if t.SystemPrompt == "" {
		missing = append(missing, "system_prompt")
	}
	if t.UserPromptTemplate == "" {
		missing = append(missing, "user_prompt_template")
	}
	return missing
}

// compile validates required fields, fills defaults and parses the user
// prompt template.
func (t *Template) compile() error {
	if missing := t.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	for i := range t.Parameters {
		if t.Parameters[i].Type == "" {
			t.Parameters[i].Type = "string"
		}
	}
	d := DefaultLLMConfig()
	if t.LLMConfig.MaxTokens == 0 {
		t.LLMConfig.MaxTokens = d.MaxTokens
	}
	if t.LLMConfig.ResponseFormat == "" {
		t.LLMConfig.ResponseFormat = d.ResponseFormat
	}

	tpl, err := pongo2.FromString("{% autoescape off %}" + t.UserPromptTemplate + "{% endautoescape %}")
	if err != nil {
		return fmt.Errorf("compile template %s: %w", t.Key(), err)
	}
	t.compiled = tpl
	return nil
}

// MissingParametersError lists every declared parameter absent from the
// render variables.
type MissingParametersError struct {
	TemplateID string
	Missing    []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("template %s: missing required parameters: %s", e.TemplateID, strings.Join(e.Missing, ", "))
}

// RenderError wraps a template execution failure.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ErrNotCompiled is returned when rendering a template that was never
// registered.
var ErrNotCompiled = errors.New("template not compiled, register it first")

// RenderUserPrompt renders the user prompt with vars. Only registered
// templates can be rendered; t is never modified, so concurrent renders are
// safe.
func (t *Template) RenderUserPrompt(vars map[string]any) (string, error) {
	var missing []string
	for _, p := range t.Parameters {
		if _, ok := vars[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingParametersError{TemplateID: t.Key(), Missing: missing}
	}

	if t.compiled == nil {
		return "", &RenderError{TemplateID: t.Key(), Err: ErrNotCompiled}
	}
	out, err := t.compiled.Execute(pongo2.Context(vars))
	if err != nil {
		return "", &RenderError{TemplateID: t.Key(), Err: err}
	}
	return out, nil
}
