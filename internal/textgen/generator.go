// Package textgen provides the text-generation capability used to explain
// anomalous records: given a prompt and a maximum output length it returns one
// generated continuation.
package textgen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"anomaly-dashboard/internal/config"
)

// Generator returns one continuation of prompt, at most maxLength tokens long.
// Output is not deterministic.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string, maxLength int) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	return f(ctx, prompt, maxLength)
}

// New builds the configured generator together with its retry, rate limit and
// metrics wrappers. It is constructed once and injected into the explainer.
func New(cfg config.TextGenConfig, logger *slog.Logger) (Generator, error) {
	var gen Generator
	switch cfg.Provider {
	case config.ProviderTemplate:
		gen = NewTemplateGenerator(nil)
	case config.ProviderOllama:
		gen = NewOllamaClient(cfg.BaseURL, cfg.Model, &http.Client{Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}

	gen = Instrumented(gen, cfg.Provider)
	if cfg.RPS > 0 {
		gen = RateLimited(gen, cfg.RPS)
	}
	if cfg.MaxRetries > 0 {
		gen = WithRetry(gen, cfg.MaxRetries, logger)
	}

	logger.Info("text generation configured",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"max_length", cfg.MaxLength,
		"max_retries", cfg.MaxRetries,
		"rps", cfg.RPS,
	)
	return gen, nil
}
