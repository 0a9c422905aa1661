package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
)

// Backend is one named Analyzer in a fallback chain
type Backend struct {
	Name     string
	Analyzer Analyzer
}

// FallbackService tries each backend in order and returns the first success
type FallbackService struct {
	backends []Backend
}

// NewFallbackService creates a fallback chain. Nil analyzers are skipped.
func NewFallbackService(backends ...Backend) *FallbackService {
	var kept []Backend
	for _, b := range backends {
		if b.Analyzer != nil {
			kept = append(kept, b)
		}
	}
	return &FallbackService{backends: kept}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"resource_exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func describe(err error) string {
	switch {
	case isQuotaError(err):
		return "quota exhausted"
	case isConnectionError(err):
		return "connection failed"
	}
	return "error"
}

// try runs op against each backend until one succeeds
func try[T any](ctx context.Context, f *FallbackService, what string, op func(Analyzer) (T, error)) (T, error) {
	var zero T
	var errs []error
	for _, b := range f.backends {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := op(b.Analyzer)
		if err == nil {
			return result, nil
		}
		log.Printf("[AI] %s %s for %s: %v, falling back", b.Name, describe(err), what, err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("no AI provider available for %s", what)
	}
	return zero, fmt.Errorf("all AI providers failed for %s: %w", what, errors.Join(errs...))
}

func (f *FallbackService) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	return try(ctx, f, "sentiment", func(a Analyzer) (*SentimentResult, error) {
		return a.AnalyzeSentiment(ctx, text)
	})
}

func (f *FallbackService) ExtractTasks(ctx context.Context, text string) ([]TaskExtraction, error) {
	return try(ctx, f, "task extraction", func(a Analyzer) ([]TaskExtraction, error) {
		return a.ExtractTasks(ctx, text)
	})
}

func (f *FallbackService) ExtractMeeting(ctx context.Context, text string) (*MeetingExtraction, error) {
	return try(ctx, f, "meeting extraction", func(a Analyzer) (*MeetingExtraction, error) {
		return a.ExtractMeeting(ctx, text)
	})
}

func (f *FallbackService) Summarize(ctx context.Context, text string) (string, error) {
	return try(ctx, f, "summary", func(a Analyzer) (string, error) {
		return a.Summarize(ctx, text)
	})
}
