package llm

import (
	"context"
	"fmt"

	"github.com/hpungsan/veileder/internal/config"
)

// New builds the Service selected by cfg.Provider.
func New(ctx context.Context, cfg *config.Config, secrets *config.Secrets) (Service, error) {
	if secrets == nil {
		secrets = &config.Secrets{}
	}
	models := Models{Fast: cfg.FastModel, Rich: cfg.RichModel}

	switch cfg.Provider {
	case config.ProviderGemini:
		if secrets.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		g, err := NewGemini(ctx, secrets.GeminiAPIKey, models, cfg.ModelTimeout())
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderOpenAI, "":
		return NewOpenAI(OpenAIConfig{
			APIKey:     secrets.OpenAIAPIKey,
			BaseURL:    secrets.OpenAIBaseURL,
			Models:     models,
			Timeout:    cfg.ModelTimeout(),
			MaxRetries: 2,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
