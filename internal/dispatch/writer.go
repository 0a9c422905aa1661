package dispatch

import (
	"context"
	"fmt"
	"strings"

	emailrepo "mailagent-backend/internal/email/repository"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	meetingrepo "mailagent-backend/internal/meeting/repository"
	taskdomain "mailagent-backend/internal/task/domain"
	taskrepo "mailagent-backend/internal/task/repository"

	"github.com/google/uuid"
)

// taskNamespace seeds the deterministic ids of extracted tasks so that
// replaying a message inserts the same rows again
var taskNamespace = uuid.MustParse("6f1c2a8e-3b9d-4c57-9e0a-52d7b1f4c3a9")

const timeLayout = "Mon Jan 2 15:04 MST"

// OutcomeWriter persists an Outcome. Apply must be safe to repeat for the
// same job.
type OutcomeWriter interface {
	Apply(ctx context.Context, job Job, outcome *Outcome) (*Result, error)
}

// StoreWriter applies outcomes to the relational store. Every write is keyed
// by the source message id, so a replay after a crash converges on the same
// rows.
type StoreWriter struct {
	meetings   meetingrepo.MeetingRepository
	tasks      taskrepo.TaskRepository
	sentiments emailrepo.SentimentRepository
}

func NewStoreWriter(meetings meetingrepo.MeetingRepository, tasks taskrepo.TaskRepository, sentiments emailrepo.SentimentRepository) *StoreWriter {
	return &StoreWriter{meetings: meetings, tasks: tasks, sentiments: sentiments}
}

func (w *StoreWriter) Apply(ctx context.Context, job Job, o *Outcome) (*Result, error) {
	msgID := job.Message().ID
	result := &Result{}
	var summary []string

	if o.Meeting != nil {
		o.Meeting.SourceMsgID = msgID
		stored, err := w.meetings.UpsertMeeting(o.Meeting)
		if err != nil {
			return nil, fmt.Errorf("%w: upsert meeting: %w", ErrStoreWrite, err)
		}
		result.MeetingID = stored.ID
		result.MeetingStatus = string(stored.Status)
		if stored.Status == meetingdomain.MeetingStatusConfirmed {
			summary = append(summary, fmt.Sprintf("Meeting %d '%s' scheduled for %s.", stored.ID, stored.Title, stored.StartTime.Format(timeLayout)))
		} else {
			summary = append(summary, fmt.Sprintf("Meeting %d '%s' proposed for %s; the slot overlaps a confirmed meeting.", stored.ID, stored.Title, stored.StartTime.Format(timeLayout)))
		}
	}

	if o.Reschedule != nil {
		m, err := w.meetings.Reschedule(o.Reschedule.MeetingID, o.Reschedule.Start, o.Reschedule.End)
		if err != nil {
			return nil, fmt.Errorf("%w: reschedule meeting %d: %w", ErrStoreWrite, o.Reschedule.MeetingID, err)
		}
		result.MeetingID = m.ID
		result.MeetingStatus = string(m.Status)
		summary = append(summary, fmt.Sprintf("Meeting %d rescheduled to %s and awaiting confirmation.", m.ID, m.StartTime.Format(timeLayout)))
	}

	if o.Feedback != nil {
		o.Feedback.SourceMsgID = msgID
		meeting, err := w.meetings.FindByID(o.Feedback.MeetingID)
		if err != nil {
			return nil, fmt.Errorf("%w: load meeting %d: %w", ErrStoreWrite, o.Feedback.MeetingID, err)
		}
		if meeting == nil {
			return nil, fmt.Errorf("meeting %d: %w", o.Feedback.MeetingID, meetingdomain.ErrMeetingNotFound)
		}
		stored, _, err := w.meetings.InsertFeedback(o.Feedback)
		if err != nil {
			return nil, fmt.Errorf("%w: insert feedback: %w", ErrStoreWrite, err)
		}
		result.MeetingID = meeting.ID
		result.FeedbackID = stored.ID
		avg, count, err := w.meetings.AverageRating(meeting.Organizer)
		if err != nil {
			return nil, fmt.Errorf("%w: average rating: %w", ErrStoreWrite, err)
		}
		summary = append(summary, fmt.Sprintf("Feedback recorded for meeting %d. Organizer average rating is %.1f/5 across %d review(s).", meeting.ID, avg, count))
	}

	if o.Sentiment != nil {
		o.Sentiment.MsgID = msgID
		if err := w.sentiments.Upsert(o.Sentiment); err != nil {
			return nil, fmt.Errorf("%w: upsert sentiment: %w", ErrStoreWrite, err)
		}
		result.Sentiment = o.Sentiment.Sentiment
		summary = append(summary, fmt.Sprintf("Sentiment %s with %s priority.", o.Sentiment.Sentiment, o.Sentiment.Priority))
	}

	for i, ext := range o.Tasks {
		task := &taskdomain.Task{
			ID:        TaskID(msgID, i),
			MsgID:     msgID,
			Title:     ext.Title,
			Project:   ext.Project,
			Assignees: ext.Assignees,
			DueDate:   ext.DueDate,
			Priority:  taskdomain.Priority(ext.Priority),
			Status:    taskdomain.TaskStatusPending,
		}
		if err := w.tasks.Insert(task); err != nil {
			return nil, fmt.Errorf("%w: insert task: %w", ErrStoreWrite, err)
		}
		result.TaskIDs = append(result.TaskIDs, task.ID)
	}
	if o.Sentiment != nil || len(o.Tasks) > 0 {
		summary = append(summary, fmt.Sprintf("%d task(s) extracted.", len(o.Tasks)))
	}

	result.Summary = strings.Join(summary, " ")
	if o.Summary != "" {
		result.Summary = o.Summary
	}
	return result, nil
}

// TaskID is the id of the i-th task extracted from a message
func TaskID(msgID string, i int) string {
	return uuid.NewSHA1(taskNamespace, []byte(fmt.Sprintf("%s#%d", msgID, i))).String()
}
