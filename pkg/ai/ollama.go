package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// OllamaService implements Generator using an Ollama local LLM. The
// endpoint can be changed at runtime from the settings API.
type OllamaService struct {
	mu      sync.RWMutex
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Endpoint returns the current base URL and model
func (o *OllamaService) Endpoint() (baseURL, model string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.baseURL, o.model
}

// SetEndpoint switches to another Ollama server. An empty model keeps the
// current one.
func (o *OllamaService) SetEndpoint(baseURL, model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.baseURL = baseURL
	if model != "" {
		o.model = model
	}
}

// Ping checks that the server answers /api/tags
func (o *OllamaService) Ping(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		baseURL, _ = o.Endpoint()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// GenerateJSON implements Generator
func (o *OllamaService) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	baseURL, model := o.Endpoint()
	url := baseURL + "/api/generate"

	payload := map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]interface{}{
			"temperature": 0.2,
			"num_predict": 500,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Response, nil
}
