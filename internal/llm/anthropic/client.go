package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kvasilopoulos/contact-center/internal/llm"
)

const DefaultModel = "claude-sonnet-4-5-20250929"

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client classifies text through the Anthropic Messages API. Retries are
// left to the caller so the circuit breaker sees one outcome per request.
type Client struct {
	cfg    Config
	client anthropic.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

// model maps non-Claude model names (prompt defaults are OpenAI models) to
// the configured Claude model.
func (c *Client) model(requested string) string {
	if strings.HasPrefix(requested, "claude") {
		return requested
	}
	return c.cfg.Model
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !c.Configured() {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: llm.ErrNotConfigured}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 500
	}
	system := req.SystemPrompt
	if req.Schema != nil || req.ResponseFormat != "" {
		system += "\n\nRespond with a single JSON object and nothing else."
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model(req.Model)),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return llm.Response{}, c.mapError(err)
	}

	if message.StopReason == "refusal" {
		return llm.Response{}, fmt.Errorf("%w: anthropic stop reason refusal", llm.ErrRefusal)
	}

	usage := llm.Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return llm.Response{Content: block.Text, Model: string(message.Model), Usage: usage}, nil
		}
	}
	return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: errors.New("no text content in anthropic response")}
}

func (c *Client) mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.BackendError{
			Provider:   c.Name(),
			StatusCode: apiErr.StatusCode,
			Transient:  llm.StatusTransient(apiErr.StatusCode),
			Err:        err,
		}
	}
	return &llm.BackendError{Provider: c.Name(), Transient: true, Err: err}
}
