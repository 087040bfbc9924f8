package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type anthropicGenerator struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ TextGenerator = (*anthropicGenerator)(nil)

func NewAnthropic(apiKey, model string, logger *zap.Logger) TextGenerator {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicGenerator{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

func (g *anthropicGenerator) Name() string  { return "anthropic" }
func (g *anthropicGenerator) Enabled() bool { return true }

func (g *anthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			g.logger.Error("Anthropic request rejected",
				zap.String("type", string(apiErr.Type)),
				zap.String("message", apiErr.Message))
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			g.logger.Debug("Anthropic request completed",
				zap.String("model", g.model),
				zap.Duration("elapsed", time.Since(start)))
			return *block.Text, nil
		}
	}
	return "", errors.New("anthropic: response has no text block")
}
