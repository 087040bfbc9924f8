// Package llm wraps the hosted text-generation backends used for savings
// advice behind a single prompt-in, text-out interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/config"
)

// ErrDisabled is returned by the generator used when no backend is configured.
var ErrDisabled = errors.New("text generation is not configured")

// TextGenerator sends one system+user prompt pair and returns the reply text.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Enabled is false for the no-op generator.
	Enabled() bool
	Name() string
}

const defaultMaxTokens = 1024

// New builds the generator selected by cfg.Provider. An empty provider or a
// missing API key yields a disabled generator rather than an error.
func New(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (TextGenerator, error) {
	logger = logger.Named("llm")

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || cfg.APIKey == "" {
		logger.Info("Text generation disabled", zap.String("provider", provider))
		return Disabled{}, nil
	}

	var (
		gen TextGenerator
		err error
	)
	switch provider {
	case "anthropic":
		gen = NewAnthropic(cfg.APIKey, cfg.Model, logger)
	case "openai":
		gen = NewOpenAI(cfg.APIKey, cfg.Model, logger)
	case "gemini":
		gen, err = NewGemini(ctx, cfg.APIKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		gen = WithTimeout(gen, cfg.Timeout)
	}
	logger.Info("Text generation enabled", zap.String("provider", gen.Name()))
	return gen, nil
}

// Disabled is the generator used when no backend is configured.
type Disabled struct{}

var _ TextGenerator = Disabled{}

func (Disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Enabled() bool { return false }
func (Disabled) Name() string  { return "disabled" }

type timeoutGenerator struct {
	TextGenerator
	timeout time.Duration
}

// WithTimeout bounds every Generate call of gen.
func WithTimeout(gen TextGenerator, timeout time.Duration) TextGenerator {
	return &timeoutGenerator{TextGenerator: gen, timeout: timeout}
}

func (g *timeoutGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.TextGenerator.Generate(ctx, system, prompt)
}
