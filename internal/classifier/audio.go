package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/kvasilopoulos/contact-center/internal/audio"
	"github.com/kvasilopoulos/contact-center/internal/llm"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

var (
	// ErrAudioUnsupported is returned for containers that need a transcoder.
	ErrAudioUnsupported = errors.New("unsupported audio format")
	// ErrAudioInvalid is returned for empty uploads and WAV data that cannot
	// be decoded.
	ErrAudioInvalid = errors.New("invalid audio payload")
)

// AudioInput is one recorded customer message.
type AudioInput struct {
	Audio   []byte
	Channel types.Channel
}

// ClassifyAudio classifies spoken audio over the realtime backend. The
// audio prompt's system text becomes the session instructions. The breaker,
// retry and fallback rules match Classify.
func (c *Classifier) ClassifyAudio(ctx context.Context, in AudioInput) Outcome {
	start := c.now()
	if in.Channel == "" {
		in.Channel = types.ChannelVoice
	}

	if c.audio == nil {
		return c.finish(start, prompts.Selection{}, failed(FailureValidation, fmt.Errorf("%w: no audio backend", llm.ErrNotConfigured)))
	}

	tmpl, err := c.registry.GetActive(c.cfg.AudioPromptID)
	if prompts.IsNotFound(err) {
		c.logger.Warn("audio prompt not found, falling back",
			"prompt_id", c.cfg.AudioPromptID,
			"fallback", c.cfg.PromptID,
		)
		tmpl, err = c.registry.GetActive(c.cfg.PromptID)
	}
	if err != nil {
		c.logger.Error("audio prompt lookup failed", "error", err)
		return c.finish(start, prompts.Selection{}, failed(FailureValidation, err))
	}

	sel := prompts.Selection{
		PromptID: tmpl.ID,
		Version:  tmpl.Version,
		Variant:  prompts.VariantActive,
		Model:    resolveModel("", tmpl.LLMConfig.Model, c.cfg.DefaultAudioModel),
	}

	pcm, err := c.preparePCM(in.Audio)
	if err != nil {
		// Caller input, not deployment configuration.
		return c.finish(start, sel, failed(FailureClassification, err))
	}

	req := llm.AudioRequest{
		Model:        sel.Model,
		Instructions: tmpl.SystemPrompt,
		Channel:      string(in.Channel),
		PCM:          pcm,
	}
	call := func(ctx context.Context) (llm.Response, error) {
		return c.audio.ClassifyAudio(ctx, req)
	}
	return c.finish(start, sel, c.run(ctx, c.audio.Name(), call))
}

// preparePCM converts uploads to 24kHz mono PCM16. Unknown input is assumed
// to already be raw PCM.
func (c *Classifier) preparePCM(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", ErrAudioInvalid)
	}
	switch f := audio.DetectFormat(data); f {
	case audio.FormatWAV:
		pcm, err := audio.ConvertWAVToPCM16(data)
		if err != nil {
			return nil, fmt.Errorf("%w: audio format conversion failed: %w", ErrAudioInvalid, err)
		}
		c.logger.Info("converted WAV to PCM16 24kHz", "input_bytes", len(data), "output_bytes", len(pcm))
		return pcm, nil
	case audio.FormatUnknown:
		c.logger.Warn("unknown audio format, using as raw PCM16 at 24kHz", "input_bytes", len(data))
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s, upload WAV (mono, 16-bit PCM, preferably 24kHz)", ErrAudioUnsupported, f)
	}
}
