package dispatch

import (
	"context"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	"mailagent-backend/pkg/ai"
)

// Agent handles one kind of job. Agents read what they need and describe
// the writes in an Outcome; they never write to the store themselves.
type Agent interface {
	Handle(ctx context.Context, job Job) (*Outcome, error)
}

// AgentFunc adapts a function to Agent
type AgentFunc func(ctx context.Context, job Job) (*Outcome, error)

func (f AgentFunc) Handle(ctx context.Context, job Job) (*Outcome, error) {
	return f(ctx, job)
}

// Outcome lists the store writes a job produces. Nil fields are skipped.
type Outcome struct {
	// Summary overrides the summary the writer would compose
	Summary string

	Meeting    *meetingdomain.Meeting
	Reschedule *Reschedule
	Feedback   *meetingdomain.Feedback
	Sentiment  *emaildomain.Sentiment
	Tasks      []ai.TaskExtraction
}

// Reschedule moves an existing meeting to a new slot
type Reschedule struct {
	MeetingID uint
	Start     time.Time
	End       time.Time
}
