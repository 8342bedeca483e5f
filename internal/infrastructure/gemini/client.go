package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fastygo/helpdesk/internal/config"
)

var ErrEmptyResponse = errors.New("gemini returned empty text")

// Client sends single-turn prompts to a Gemini model and returns the raw
// text of the first candidate.
type Client struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// NewClient builds a Gemini API client from the classifier settings.
func NewClient(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY must be set when CLASSIFIER_PROVIDER=%s", config.ClassifierGemini)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{
		client:    client,
		modelName: cfg.Model,
		logger:    logger.With(zap.String("model", cfg.Model)),
	}, nil
}

// Complete implements classify.Model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	temp := float32(0)
	outputTokens := int32(256)

	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  outputTokens,
		ResponseMIMEType: "application/json",
	}

	res, err := c.client.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("gemini completion", zap.Int("chars", len(text)))
	return text, nil
}
