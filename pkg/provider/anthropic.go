package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/models"
)

// Anthropic streams completions from the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropic creates an Anthropic upstream. SDK retries are disabled so
// rate limits surface to the caller unchanged.
func NewAnthropic(cfg config.UpstreamConfig, logger *zap.Logger) *Anthropic {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		logger: logger.With(zap.String("component", "upstream"), zap.String("upstream", "anthropic")),
	}
}

// Stream implements dispatch.Upstream.
func (a *Anthropic) Stream(ctx context.Context, req dispatch.Request, emit dispatch.EmitFunc) (models.Usage, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  buildAnthropicMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if req.CacheSystemPrompt {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var usage models.Usage
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				if err := emit(d.Text); err != nil {
					return usage, err
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.OutputTokens = int(ev.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return usage, ctx.Err()
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return usage, classify(req.Model, apiErr.StatusCode, err)
		}
		return usage, dispatch.Fatal(req.Model, 0, fmt.Errorf("anthropic stream: %w", err))
	}
	a.logger.Debug("stream finished",
		zap.String("model", req.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	return usage, nil
}

// buildAnthropicMessages converts history to alternating turns. The
// Messages API requires the first turn to be the user's, so a leading
// assistant turn such as the flow's opening question is dropped.
func buildAnthropicMessages(msgs []models.ChatMessage) []anthropic.MessageParam {
	turns := mergeTurns(msgs)
	if len(turns) > 0 && turns[0].Role == models.RoleAssistant {
		turns = turns[1:]
	}

	var params []anthropic.MessageParam
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == models.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}
