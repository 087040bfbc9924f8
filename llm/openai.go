package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ TextGenerator = (*openAIGenerator)(nil)

// NewOpenAI talks to the OpenAI chat completions API. baseURL overrides are
// not exposed; OpenAI-compatible endpoints are not a deployment target.
func NewOpenAI(apiKey, model string, logger *zap.Logger) TextGenerator {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIGenerator{
		client: openai.NewClientWithConfig(openai.DefaultConfig(apiKey)),
		model:  model,
		logger: logger,
	}
}

func (g *openAIGenerator) Name() string  { return "openai" }
func (g *openAIGenerator) Enabled() bool { return true }

func (g *openAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: defaultMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.logger.Error("OpenAI request rejected",
				zap.Int("status", apiErr.HTTPStatusCode),
				zap.String("message", apiErr.Message))
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}

	g.logger.Debug("OpenAI request completed",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}
