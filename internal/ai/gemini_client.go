package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/motdbot/internal/config"
)

// geminiClient implements Client using Google's Gemini API for both content
// generation and embeddings.
type geminiClient struct {
	client         *genai.Client
	log            *slog.Logger
	model          string
	embeddingModel string
	temperature    float32
	maxRetries     int
	retryDelay     time.Duration
}

func newGeminiClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.Model)
	return &geminiClient{
		client:         gi,
		log:            logger,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}, nil
}

func (c *geminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.log.DebugContext(ctx, "Generating completion", "prompt_len", len(userPrompt))

	temp := c.temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature: &temp,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}

	var text string
	err := c.withRetries(ctx, "completion", func() error {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
		if err != nil {
			return err
		}
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
			return fmt.Errorf("completion blocked by safety filter: %v", resp.PromptFeedback.BlockReason)
		}
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			return errors.New("completion returned empty content")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	return text, nil
}

func (c *geminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.log.DebugContext(ctx, "Generating embedding", "text_len", len(text))

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	var vec []float32
	err := c.withRetries(ctx, "embedding", func() error {
		resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return errors.New("embedding response contained no vector")
		}
		vec = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	return vec, nil
}

// withRetries runs the call, retrying on retriable APIError codes (500, 503)
// up to maxRetries times with a fixed delay.
func (c *geminiClient) withRetries(ctx context.Context, op string, call func() error) error {
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		err = call()
		if err == nil {
			return nil
		}

		var apiErr *genai.APIError
		retriable := errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)
		if !retriable || i == c.maxRetries {
			c.log.ErrorContext(ctx, "Gemini API call failed", "operation", op, "attempt", i+1, "error", err)
			return err
		}

		c.log.WarnContext(ctx, "Retrying Gemini API call", "operation", op, "attempt", i+1, "delay", c.retryDelay, "error", err)
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
