package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// OpenAIConfig configures the chat-completions backed client. BaseURL is
// optional and supports OpenAI-compatible proxies.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI implements Client over the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("Complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("Complete: response carried no choices")
	}

	c.logger.Debug("model completion finished",
		zap.String("model", c.model),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return resp.Choices[0].Message.Content, nil
}
