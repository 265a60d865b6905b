package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/motdbot/internal/config"
)

// openAIClient implements Client using the OpenAI API for both chat
// completion and embeddings.
type openAIClient struct {
	client         *openai.Client
	log            *slog.Logger
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	maxRetries     int
	retryDelay     time.Duration
}

func newOpenAIClient(cfg config.AIConfig, log *slog.Logger) (Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger := log.With("component", "openai_client")
	logger.Info("OpenAI client initialized successfully", "model", cfg.Model)
	return &openAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		log:            logger,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.log.DebugContext(ctx, "Generating completion", "prompt_len", len(userPrompt))

	var text string
	err := c.withRetries(ctx, "completion", func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion returned no choices")
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return errors.New("completion returned empty content")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	return text, nil
}

func (c *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.log.DebugContext(ctx, "Generating embedding", "text_len", len(text))

	var vec []float32
	err := c.withRetries(ctx, "embedding", func() error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errors.New("embedding response contained no vector")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	return vec, nil
}

// withRetries runs the call, retrying on retriable API errors (rate limits
// and server-side failures) up to maxRetries times with a fixed delay.
func (c *openAIClient) withRetries(ctx context.Context, op string, call func() error) error {
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		err = call()
		if err == nil {
			return nil
		}

		var apiErr *openai.APIError
		retriable := errors.As(err, &apiErr) &&
			(apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
				apiErr.HTTPStatusCode == http.StatusInternalServerError ||
				apiErr.HTTPStatusCode == http.StatusServiceUnavailable)
		if !retriable || i == c.maxRetries {
			c.log.ErrorContext(ctx, "OpenAI API call failed", "operation", op, "attempt", i+1, "error", err)
			return err
		}

		c.log.WarnContext(ctx, "Retrying OpenAI API call", "operation", op, "attempt", i+1, "delay", c.retryDelay, "error", err)
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
