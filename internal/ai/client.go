// Package ai provides a provider-agnostic client for text and embedding
// generation, with OpenAI and Gemini backends.
package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/motdbot/internal/config"
)

// Client defines the AI operations the bot depends on: generating message
// text from a prompt and producing an embedding vector for similarity
// scoring. Both calls block until the provider responds or ctx is done.
type Client interface {
	// Complete generates text from a system instruction and user prompt.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Embed returns a fixed-length embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// New creates an AI client for the configured backend. It acts as a factory,
// selecting either the OpenAI or Gemini implementation.
func New(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Client, error) {
	log.Info("Initializing AI client", "backend", cfg.Backend, "model", cfg.Model)

	switch cfg.Backend {
	case "openai":
		return newOpenAIClient(cfg, log)
	case "gemini":
		return newGeminiClient(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown AI backend specified: %s", cfg.Backend)
	}
}
