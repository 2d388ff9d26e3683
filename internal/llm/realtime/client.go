// Package realtime classifies spoken audio over the OpenAI Realtime
// websocket protocol.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kvasilopoulos/contact-center/internal/llm"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"
)

type Config struct {
	APIKey  string
	URL     string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string { return "realtime" }

func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

// ClassifyAudio runs one classification exchange: configure the session,
// submit the audio item, request a text response and collect it. The whole
// exchange shares a single deadline.
func (c *Client) ClassifyAudio(ctx context.Context, req llm.AudioRequest) (llm.Response, error) {
	if !c.Configured() {
		return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: llm.ErrNotConfigured}
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return llm.Response{}, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		be := &llm.BackendError{Provider: c.Name(), Transient: true, Err: fmt.Errorf("dial realtime: %w", err)}
		if resp != nil {
			be.StatusCode = resp.StatusCode
			be.Transient = llm.StatusTransient(resp.StatusCode)
		}
		return llm.Response{}, be
	}
	defer conn.Close()

	// Unblock reads when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	ex := newExchange(req)
	if err := conn.WriteJSON(ex.start()); err != nil {
		return llm.Response{}, c.transportError(ctx, err)
	}

	for ex.state != stateDone {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return llm.Response{}, c.transportError(ctx, err)
		}
		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		out, err := ex.handle(ev)
		if err != nil {
			return llm.Response{}, &llm.BackendError{Provider: c.Name(), Err: err}
		}
		if out != nil {
			if err := conn.WriteJSON(out); err != nil {
				return llm.Response{}, c.transportError(ctx, err)
			}
		}
	}

	return llm.Response{Content: ex.text, Model: model}, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	var ne net.Error
	if ctxErr == nil && errors.As(err, &ne) && ne.Timeout() {
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		err = fmt.Errorf("realtime audio classification timed out: %w", ctxErr)
	}
	return &llm.BackendError{Provider: c.Name(), Transient: true, Err: err}
}

type state int

const (
	stateConfiguring state = iota
	stateSubmitting
	stateResponding
	stateDone
)

func (s state) String() string {
	switch s {
	case stateConfiguring:
		return "configuring"
	case stateSubmitting:
		return "submitting"
	case stateResponding:
		return "responding"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// exchange is the client side of one realtime conversation.
type exchange struct {
	req   llm.AudioRequest
	state state
	text  string
}

func newExchange(req llm.AudioRequest) *exchange {
	return &exchange{req: req, state: stateConfiguring}
}

func (e *exchange) start() map[string]any {
	return map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"instructions":        e.req.Instructions,
			"modalities":          []string{"text", "audio"},
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"turn_detection":      nil,
		},
	}
}

func (e *exchange) audioItem() map[string]any {
	preamble := fmt.Sprintf("CHANNEL: %s\n\nCUSTOMER AUDIO FOLLOWS. Listen to the audio and classify it according to the instructions.", e.req.Channel)
	return map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": preamble},
				{"type": "input_audio", "audio": base64.StdEncoding.EncodeToString(e.req.PCM)},
			},
		},
	}
}

func responseCreate() map[string]any {
	return map[string]any{
		"type":     "response.create",
		"response": map[string]any{"modalities": []string{"text"}},
	}
}

// handle advances the state machine and returns the next client event to
// send, if any.
func (e *exchange) handle(ev serverEvent) (map[string]any, error) {
	if ev.Type == "error" {
		msg := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		return nil, fmt.Errorf("realtime API error while %s: %s", e.state, msg)
	}

	switch e.state {
	case stateConfiguring:
		if ev.Type == "session.updated" {
			e.state = stateSubmitting
			return e.audioItem(), nil
		}
	case stateSubmitting:
		if ev.Type == "conversation.item.created" {
			e.state = stateResponding
			return responseCreate(), nil
		}
	case stateResponding:
		switch ev.Type {
		case "response.text.delta":
			e.text += ev.Delta
		case "response.text.done":
			if ev.Text != "" {
				e.text = ev.Text
			}
		case "response.done":
			if ev.Response != nil {
				for _, item := range ev.Response.Output {
					if item.Type != "message" {
						continue
					}
					for _, part := range item.Content {
						if part.Type == "text" && part.Text != "" {
							e.text = part.Text
						}
					}
				}
			}
			if e.text == "" {
				return nil, errors.New("realtime response contained no text output")
			}
			e.state = stateDone
		}
	}
	return nil, nil
}

type serverEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Output []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	} `json:"response"`
}
