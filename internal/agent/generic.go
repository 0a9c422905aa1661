package agent

import (
	"context"
	"fmt"
	"time"

	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/pkg/ai"
)

const maxStoredBody = 5000

// GenericAgent tags sentiment and priority and extracts action items
type GenericAgent struct {
	analyzer ai.Analyzer
	now      func() time.Time
}

func (a *GenericAgent) Handle(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
	j, ok := job.(dispatch.GenericJob)
	if !ok {
		return nil, unexpectedJob(dispatch.KindGeneric, job)
	}
	msg := j.Msg
	text := msg.Text()

	sentiment, err := a.analyzer.AnalyzeSentiment(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("analyze sentiment: %w", err)
	}
	tasks, err := a.analyzer.ExtractTasks(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract tasks: %w", err)
	}

	body := msg.Body
	if len(body) > maxStoredBody {
		body = body[:maxStoredBody]
	}
	return &dispatch.Outcome{
		Sentiment: &emaildomain.Sentiment{
			Sentiment:   sentiment.Sentiment,
			Confidence:  sentiment.Confidence,
			Priority:    sentiment.Priority,
			Subject:     msg.Subject,
			Body:        body,
			ProcessedAt: a.now(),
		},
		Tasks: tasks,
	}, nil
}
