package ai

import (
	"context"
	"time"
)

// TaskExtraction represents an extracted task from a message (shared type)
type TaskExtraction struct {
	Title     string     `json:"title"`
	Project   string     `json:"project,omitempty"`
	Assignees []string   `json:"assignees,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Priority  string     `json:"priority"`
}

// SentimentResult is the sentiment/priority tag for a message
type SentimentResult struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Priority   string  `json:"priority"`
}

// MeetingExtraction is a meeting request found in free text. Start is nil
// when no time could be determined.
type MeetingExtraction struct {
	Title           string     `json:"title"`
	Start           *time.Time `json:"start,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Participants    []string   `json:"participants,omitempty"`
}

// Analyzer is the interface worker agents use to understand message text.
// Implement this interface to add new AI providers.
type Analyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error)
	ExtractTasks(ctx context.Context, text string) ([]TaskExtraction, error)
	ExtractMeeting(ctx context.Context, text string) (*MeetingExtraction, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// Generator is a raw LLM backend that answers a prompt with JSON text
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
	ProviderRules  ProviderType = "rules"
)

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)
