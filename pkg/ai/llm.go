package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LLMAnalyzer implements Analyzer on top of any Generator
type LLMAnalyzer struct {
	gen Generator
	now func() time.Time
}

// NewLLMAnalyzer wraps a Generator
func NewLLMAnalyzer(gen Generator) *LLMAnalyzer {
	return &LLMAnalyzer{gen: gen, now: time.Now}
}

func (a *LLMAnalyzer) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	prompt := fmt.Sprintf(`You classify business email.
Return a JSON object: {"sentiment": "positive"|"neutral"|"negative", "confidence": number between 0 and 1, "priority": "high"|"medium"|"low"}.
Priority is high for urgent requests or deadlines within 24 hours.

EMAIL:
%s`, text)

	raw, err := a.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var result SentimentResult
	if err := json.Unmarshal([]byte(extractJSON(raw, '{', '}')), &result); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment JSON: %w", err)
	}
	return normalizeSentiment(&result), nil
}

func (a *LLMAnalyzer) ExtractTasks(ctx context.Context, text string) ([]TaskExtraction, error) {
	prompt := fmt.Sprintf(`You extract action items from email.
TODAY: %s
Return a JSON array. Each item: {"title": string, "project": string, "assignees": [string], "due_date": "YYYY-MM-DD" or "", "priority": "high"|"medium"|"low"}.
Return [] when there is nothing to do.

EMAIL:
%s`, a.now().Format("2006-01-02"), text)

	raw, err := a.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var rawTasks []struct {
		Title     string   `json:"title"`
		Project   string   `json:"project"`
		Assignees []string `json:"assignees"`
		DueDate   string   `json:"due_date"`
		Priority  string   `json:"priority"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw, '[', ']')), &rawTasks); err != nil {
		return nil, fmt.Errorf("failed to parse task JSON: %w", err)
	}

	tasks := make([]TaskExtraction, 0, len(rawTasks))
	for _, rt := range rawTasks {
		if strings.TrimSpace(rt.Title) == "" {
			continue
		}
		tasks = append(tasks, TaskExtraction{
			Title:     strings.TrimSpace(rt.Title),
			Project:   rt.Project,
			Assignees: rt.Assignees,
			DueDate:   parseDate(rt.DueDate, a.now()),
			Priority:  normalizePriority(rt.Priority),
		})
	}
	return tasks, nil
}

func (a *LLMAnalyzer) ExtractMeeting(ctx context.Context, text string) (*MeetingExtraction, error) {
	prompt := fmt.Sprintf(`You extract a meeting request from text.
NOW: %s
Return a JSON object: {"title": string, "start": RFC3339 timestamp or "", "duration_minutes": integer, "participants": [email addresses]}.

TEXT:
%s`, a.now().Format(time.RFC3339), text)

	raw, err := a.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var rm struct {
		Title           string   `json:"title"`
		Start           string   `json:"start"`
		DurationMinutes int      `json:"duration_minutes"`
		Participants    []string `json:"participants"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw, '{', '}')), &rm); err != nil {
		return nil, fmt.Errorf("failed to parse meeting JSON: %w", err)
	}

	return &MeetingExtraction{
		Title:           strings.TrimSpace(rm.Title),
		Start:           parseDate(rm.Start, a.now()),
		DurationMinutes: rm.DurationMinutes,
		Participants:    rm.Participants,
	}, nil
}

func (a *LLMAnalyzer) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`Summarize this email in one sentence. Return a JSON object: {"summary": string}.

EMAIL:
%s`, text)

	raw, err := a.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return "", err
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw, '{', '}')), &result); err != nil {
		return "", fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	return strings.TrimSpace(result.Summary), nil
}

// extractJSON trims model chatter around the outermost JSON value
func extractJSON(text string, open, close byte) string {
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, value, now.Location()); err == nil {
			return &t
		}
	}
	return parseRelativeDate(value, now)
}

func parseRelativeDate(value string, now time.Time) *time.Time {
	value = strings.ToLower(value)
	switch {
	case strings.Contains(value, "today"):
		t := now
		return &t
	case strings.Contains(value, "tomorrow"):
		t := now.AddDate(0, 0, 1)
		return &t
	case strings.Contains(value, "next week"):
		t := now.AddDate(0, 0, 7)
		return &t
	}
	return nil
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	}
	return PriorityMedium
}

func normalizeSentiment(r *SentimentResult) *SentimentResult {
	switch strings.ToLower(strings.TrimSpace(r.Sentiment)) {
	case SentimentPositive:
		r.Sentiment = SentimentPositive
	case SentimentNegative:
		r.Sentiment = SentimentNegative
	default:
		r.Sentiment = SentimentNeutral
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	r.Priority = normalizePriority(r.Priority)
	return r
}
