package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kvasilopoulos/contact-center/internal/llm"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey            string
	BaseURL           string
	Organization      string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to the OpenAI chat completions API.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{cfg: cfg, client: httpClient}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

func (c *Client) Name() string { return "openai" }

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !c.Configured() {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: llm.ErrNotConfigured}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return llm.Response{}, fmt.Errorf("openai pacing: %w", err)
		}
	}

	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: responseFormat(req),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return llm.Response{}, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return llm.Response{}, err
		}
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Transient: true, Err: fmt.Errorf("read openai response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return llm.Response{}, &llm.BackendError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Transient:  llm.StatusTransient(resp.StatusCode),
			Err:        fmt.Errorf("openai returned status %d: %s", resp.StatusCode, errorMessage(raw)),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: fmt.Errorf("unmarshal openai response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: errors.New("empty response from openai")}
	}

	msg := out.Choices[0].Message
	if msg.Refusal != "" {
		return llm.Response{}, fmt.Errorf("%w: %s", llm.ErrRefusal, msg.Refusal)
	}
	if msg.Content == "" {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: errors.New("empty response from openai")}
	}

	return llm.Response{
		Content: msg.Content,
		Model:   out.Model,
		Usage: llm.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

func responseFormat(req llm.Request) *responseFormatBody {
	if req.Schema != nil {
		return &responseFormatBody{Type: "json_schema", JSONSchema: req.Schema}
	}
	if req.ResponseFormat == "json_object" {
		return &responseFormatBody{Type: "json_object"}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return string(raw)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormatBody struct {
	Type       string          `json:"type"`
	JSONSchema *llm.JSONSchema `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormatBody `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
