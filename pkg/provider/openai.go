package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/models"
)

// OpenAI streams completions from any OpenAI-compatible chat API.
type OpenAI struct {
	client openai.Client
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible upstream with SDK retries disabled.
func NewOpenAI(cfg config.UpstreamConfig, logger *zap.Logger) *OpenAI {
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
	return &OpenAI{
		client: openai.NewClient(opts...),
		logger: logger.With(zap.String("component", "upstream"), zap.String("upstream", "openai")),
	}
}

// Stream implements dispatch.Upstream.
func (o *OpenAI) Stream(ctx context.Context, req dispatch.Request, emit dispatch.EmitFunc) (models.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: buildOpenAIMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var usage models.Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage.InputTokens = int(chunk.Usage.PromptTokens)
			usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			if err := emit(text); err != nil {
				return usage, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return usage, ctx.Err()
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return usage, classify(req.Model, apiErr.StatusCode, err)
		}
		return usage, dispatch.Fatal(req.Model, 0, fmt.Errorf("openai stream: %w", err))
	}
	o.logger.Debug("stream finished",
		zap.String("model", req.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	return usage, nil
}

func buildOpenAIMessages(system string, msgs []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	var params []openai.ChatCompletionMessageParamUnion
	if system != "" {
		params = append(params, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			params = append(params, openai.AssistantMessage(m.Content))
		} else {
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}
