package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrEmptyResponse is returned when the model produced no text
var ErrEmptyResponse = errors.New("gemini returned no content")

// GeminiService generates JSON answers with a Gemini model
type GeminiService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiService creates a Gemini client for modelName
func NewGeminiService(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*GeminiService, error) {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	return &GeminiService{client: client, model: model}, nil
}

// GenerateJSON implements ai.Generator
func (g *GeminiService) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// First candidate with content is enough
		if sb.Len() > 0 {
			break
		}
	}

	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Close releases the underlying client
func (g *GeminiService) Close() error {
	return g.client.Close()
}
