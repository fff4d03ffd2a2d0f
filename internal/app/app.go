// Package app builds the run pipeline from configuration. The worker and
// the CLI share it.
package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/ai"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/config"
	"github.com/suPer8Hu/anthem-ai/internal/suno"
)

// NewRegistry registers every supported LLM backend. An empty model picks
// the configured default.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	return reg
}

func NewSunoClient(cfg config.Config, logger *zerolog.Logger) *suno.Client {
	return suno.NewClient(suno.Options{
		APIKey:       cfg.Suno.APIKey,
		BaseURL:      cfg.Suno.BaseURL,
		Model:        cfg.Suno.Model,
		CallbackURL:  cfg.Suno.CallbackURL,
		MaxWait:      cfg.Suno.MaxWait(),
		PollInterval: cfg.Suno.PollInterval(),
		Logger:       logger,
	})
}

// NewPipeline wires both agents to the configured provider and the song
// stage to the Suno client.
func NewPipeline(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*anthem.Pipeline, error) {
	provider, err := NewRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, err
	}
	return anthem.NewPipeline(provider, provider, NewSunoClient(cfg, logger), logger), nil
}
