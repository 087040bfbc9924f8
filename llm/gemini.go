package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiGenerator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ TextGenerator = (*geminiGenerator)(nil)

func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (TextGenerator, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: init client: %w", err)
	}
	return &geminiGenerator{client: client, model: model, logger: logger}, nil
}

func (g *geminiGenerator) Name() string  { return "gemini" }
func (g *geminiGenerator) Enabled() bool { return true }

func (g *geminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		MaxOutputTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	g.logger.Debug("Gemini request completed",
		zap.String("model", g.model),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
