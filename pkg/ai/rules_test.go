package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestResolveWhen(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *time.Time
	}{
		{"tomorrow with clock", "tomorrow at 3pm", ptr(time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC))},
		{"weekday default hour", "see you on Friday", ptr(time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC))},
		{"same weekday means next week", "on Wednesday", ptr(time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC))},
		{"iso date and time", "slot 2024-05-10 14:30 works", ptr(time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC))},
		{"past clock rolls to tomorrow", "at 8am", ptr(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))},
		{"24h clock later today", "at 16:45", ptr(time.Date(2024, 5, 1, 16, 45, 0, 0, time.UTC))},
		{"nothing", "whenever suits you", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveWhen(tt.text, fixedNow, 10)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
		})
	}
}

func TestRuleSentiment(t *testing.T) {
	r := NewRuleAnalyzerWithClock(func() time.Time { return fixedNow })
	ctx := context.Background()

	positive, err := r.AnalyzeSentiment(ctx, "Thanks, great work on the launch")
	require.NoError(t, err)
	assert.Equal(t, SentimentPositive, positive.Sentiment)
	assert.Greater(t, positive.Confidence, 0.5)
	assert.Equal(t, PriorityMedium, positive.Priority)

	negative, err := r.AnalyzeSentiment(ctx, "URGENT: the build is broken again")
	require.NoError(t, err)
	assert.Equal(t, SentimentNegative, negative.Sentiment)
	assert.Equal(t, PriorityHigh, negative.Priority)

	neutral, err := r.AnalyzeSentiment(ctx, "FYI the office moves next month")
	require.NoError(t, err)
	assert.Equal(t, SentimentNeutral, neutral.Sentiment)
	assert.Equal(t, 0.5, neutral.Confidence)
	assert.Equal(t, PriorityLow, neutral.Priority)
}

func TestRuleExtractTasks(t *testing.T) {
	r := NewRuleAnalyzerWithClock(func() time.Time { return fixedNow })

	text := "Subject: Quarterly report\n\nHi team. Please send the report for project Apollo to carol@example.com by Friday. Thanks!"
	tasks, err := r.ExtractTasks(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "Please send the report for project Apollo to carol@example.com by Friday", task.Title)
	assert.Equal(t, "Apollo", task.Project)
	assert.Equal(t, []string{"carol@example.com"}, task.Assignees)
	require.NotNil(t, task.DueDate)
	assert.True(t, time.Date(2024, 5, 3, 17, 0, 0, 0, time.UTC).Equal(*task.DueDate))
	assert.Equal(t, PriorityMedium, task.Priority)
}

func TestRuleExtractTasksNone(t *testing.T) {
	r := NewRuleAnalyzer()
	tasks, err := r.ExtractTasks(context.Background(), "Subject: Hello\n\nJust saying hi.")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRuleExtractMeeting(t *testing.T) {
	r := NewRuleAnalyzerWithClock(func() time.Time { return fixedNow })

	text := "Subject: Design sync\n\nCan we meet tomorrow at 3pm for 1 hour? Inviting Bob@Example.com and bob@example.com"
	meeting, err := r.ExtractMeeting(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "Design sync", meeting.Title)
	require.NotNil(t, meeting.Start)
	assert.True(t, time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC).Equal(*meeting.Start))
	assert.Equal(t, 60, meeting.DurationMinutes)
	assert.Equal(t, []string{"bob@example.com"}, meeting.Participants)
}

func TestRuleSummarize(t *testing.T) {
	r := NewRuleAnalyzer()
	summary, err := r.Summarize(context.Background(), "Subject: Update\n\nThe release shipped. More soon.")
	require.NoError(t, err)
	assert.Equal(t, "The release shipped", summary)
}

func ptr(t time.Time) *time.Time { return &t }
