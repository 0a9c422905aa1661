package ai

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})(?:[ T](\d{1,2}):(\d{2}))?`)
	clockPattern     = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	weekdayPattern   = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	durationPattern  = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	projectPattern   = regexp.MustCompile(`(?i)\bproject[:\s]+([A-Za-z0-9_\-]+)`)
	sentenceSplitter = regexp.MustCompile(`[.!?]+(\s+|$)|\n+`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	positiveWords = []string{"thank", "thanks", "great", "appreciate", "glad", "happy", "excellent", "good news", "congrat", "pleased", "love"}
	negativeWords = []string{"unfortunately", "problem", "issue", "complaint", "disappointed", "angry", "delay", "broken", "fail", "urgent", "sorry", "bad"}
	urgentWords   = []string{"urgent", "asap", "immediately", "critical", "as soon as possible", "eod", "end of day", "deadline today"}
	lowWords      = []string{"fyi", "newsletter", "unsubscribe", "no action", "for your information"}
	actionPhrases = []string{"please ", "can you", "could you", "need to", "needs to", "make sure", "action item", "todo", "to do:", "don't forget", "remember to", "deadline"}
)

// RuleAnalyzer is a deterministic keyword-based Analyzer. It needs no
// network and is the last resort when every LLM fails.
type RuleAnalyzer struct {
	now func() time.Time
}

// NewRuleAnalyzer creates a RuleAnalyzer
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{now: time.Now}
}

// NewRuleAnalyzerWithClock creates a RuleAnalyzer with a fixed time source
func NewRuleAnalyzerWithClock(now func() time.Time) *RuleAnalyzer {
	return &RuleAnalyzer{now: now}
}

func (r *RuleAnalyzer) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	lower := strings.ToLower(text)

	score := countAny(lower, positiveWords) - countAny(lower, negativeWords)
	result := &SentimentResult{Sentiment: SentimentNeutral, Confidence: 0.5}
	switch {
	case score > 0:
		result.Sentiment = SentimentPositive
	case score < 0:
		result.Sentiment = SentimentNegative
	}
	if score != 0 {
		result.Confidence = 0.5 + 0.1*float64(abs(score))
		if result.Confidence > 0.95 {
			result.Confidence = 0.95
		}
	}

	switch {
	case countAny(lower, urgentWords) > 0:
		result.Priority = PriorityHigh
	case countAny(lower, lowWords) > 0:
		result.Priority = PriorityLow
	default:
		result.Priority = PriorityMedium
	}
	return result, nil
}

func (r *RuleAnalyzer) ExtractTasks(ctx context.Context, text string) ([]TaskExtraction, error) {
	now := r.now()
	project := ""
	if m := projectPattern.FindStringSubmatch(text); m != nil {
		project = m[1]
	}

	var tasks []TaskExtraction
	seen := make(map[string]bool)
	for _, sentence := range sentenceSplitter.Split(body(text), -1) {
		sentence = strings.TrimSpace(sentence)
		lower := strings.ToLower(sentence)
		if sentence == "" || countAny(lower+" ", actionPhrases) == 0 {
			continue
		}

		title := sentence
		if len(title) > 120 {
			title = strings.TrimSpace(title[:120])
		}
		if seen[strings.ToLower(title)] {
			continue
		}
		seen[strings.ToLower(title)] = true

		priority := PriorityMedium
		if countAny(lower, urgentWords) > 0 {
			priority = PriorityHigh
		}

		tasks = append(tasks, TaskExtraction{
			Title:     title,
			Project:   project,
			Assignees: emailPattern.FindAllString(sentence, -1),
			DueDate:   resolveWhen(sentence, now, 17),
			Priority:  priority,
		})
	}
	return tasks, nil
}

func (r *RuleAnalyzer) ExtractMeeting(ctx context.Context, text string) (*MeetingExtraction, error) {
	meeting := &MeetingExtraction{
		Title:           subject(text),
		Start:           resolveWhen(text, r.now(), 10),
		DurationMinutes: 30,
		Participants:    uniqueLower(emailPattern.FindAllString(text, -1)),
	}

	if m := durationPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "h") {
			n *= 60
		}
		if n > 0 {
			meeting.DurationMinutes = n
		}
	}
	return meeting, nil
}

func (r *RuleAnalyzer) Summarize(ctx context.Context, text string) (string, error) {
	for _, sentence := range sentenceSplitter.Split(body(text), -1) {
		if sentence = strings.TrimSpace(sentence); sentence != "" {
			if len(sentence) > 200 {
				sentence = sentence[:200] + "..."
			}
			return sentence, nil
		}
	}
	return subject(text), nil
}

// resolveWhen finds a date and time mentioned in text. A day without a
// clock time uses defaultHour; a clock time without a day means the next
// occurrence of that time.
func resolveWhen(text string, now time.Time, defaultHour int) *time.Time {
	lower := strings.ToLower(text)
	loc := now.Location()

	var day time.Time
	haveDay := false
	hour, minute, haveClock := -1, 0, false

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if d, err := time.ParseInLocation("2006-01-02", m[1], loc); err == nil {
			day, haveDay = d, true
			if m[2] != "" {
				hour, _ = strconv.Atoi(m[2])
				minute, _ = strconv.Atoi(m[3])
				haveClock = true
			}
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if !haveDay {
		switch {
		case strings.Contains(lower, "tomorrow"):
			day, haveDay = today.AddDate(0, 0, 1), true
		case strings.Contains(lower, "next week"):
			day, haveDay = today.AddDate(0, 0, 7), true
		case strings.Contains(lower, "today") || strings.Contains(lower, "tonight"):
			day, haveDay = today, true
		default:
			if m := weekdayPattern.FindStringSubmatch(lower); m != nil {
				diff := (int(weekdays[m[1]]) - int(now.Weekday()) + 7) % 7
				if diff == 0 {
					diff = 7
				}
				day, haveDay = today.AddDate(0, 0, diff), true
			}
		}
	}

	if !haveClock {
		if m := clockPattern.FindStringSubmatch(text); m != nil {
			h, _ := strconv.Atoi(m[1])
			mm := 0
			if m[2] != "" {
				mm, _ = strconv.Atoi(m[2])
			}
			switch strings.ToLower(m[3]) {
			case "pm":
				if h < 12 {
					h += 12
				}
			case "am":
				if h == 12 {
					h = 0
				}
			}
			if h < 24 && mm < 60 {
				hour, minute, haveClock = h, mm, true
			}
		}
	}

	switch {
	case haveDay && haveClock:
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		return &t
	case haveDay:
		t := time.Date(day.Year(), day.Month(), day.Day(), defaultHour, 0, 0, 0, loc)
		return &t
	case haveClock:
		t := time.Date(today.Year(), today.Month(), today.Day(), hour, minute, 0, 0, loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return &t
	}
	return nil
}

// subject returns the "Subject:" line if present, else the first line
func subject(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "subject:") {
			return strings.TrimSpace(line[len("subject:"):])
		}
		if len(line) > 80 {
			line = line[:80]
		}
		return line
	}
	return ""
}

// body drops a leading "Subject:" line
func body(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(strings.ToLower(trimmed), "subject:") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			return trimmed[idx+1:]
		}
		return ""
	}
	return text
}

func countAny(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func uniqueLower(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.ToLower(v)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
