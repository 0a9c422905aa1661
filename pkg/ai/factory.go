package ai

import (
	"context"
	"fmt"
	"log"

	"mailagent-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	GeminiAPIKey string
	GeminiModel  string

	OllamaBaseURL string
	OllamaModel   string
	// Ollama reuses an existing client, e.g. one the settings API can retarget
	Ollama *OllamaService
}

// NewAnalyzer builds the Analyzer for cfg.Provider. Every chain ends with the
// rule-based analyzer so classification never depends on a remote model.
// The returned close function releases provider clients.
func NewAnalyzer(ctx context.Context, cfg Config) (Analyzer, func(), error) {
	rules := Backend{Name: "rules", Analyzer: NewRuleAnalyzer()}
	noop := func() {}

	newGemini := func() (*gemini.GeminiService, error) {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return gemini.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.Ollama == nil {
		cfg.Ollama = NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
	}
	ollama := Backend{Name: "ollama", Analyzer: NewLLMAnalyzer(cfg.Ollama)}

	switch cfg.Provider {
	case ProviderRules:
		return rules.Analyzer, noop, nil

	case ProviderGemini:
		g, err := newGemini()
		if err != nil {
			return nil, noop, err
		}
		return NewFallbackService(Backend{Name: "gemini", Analyzer: NewLLMAnalyzer(g)}, rules), closer(g), nil

	case ProviderOllama:
		return NewFallbackService(ollama, rules), noop, nil

	case ProviderAuto, "":
		if cfg.GeminiAPIKey == "" {
			log.Println("[AI] GEMINI_API_KEY not set, using Ollama with rule fallback")
			return NewFallbackService(ollama, rules), noop, nil
		}
		g, err := newGemini()
		if err != nil {
			return nil, noop, err
		}
		return NewFallbackService(Backend{Name: "gemini", Analyzer: NewLLMAnalyzer(g)}, ollama, rules), closer(g), nil
	}

	return nil, noop, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.Provider)
}

func closer(g *gemini.GeminiService) func() {
	return func() {
		if err := g.Close(); err != nil {
			log.Printf("[AI] Failed to close Gemini client: %v", err)
		}
	}
}
