package agent

import (
	"context"
	"fmt"

	"mailagent-backend/internal/dispatch"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	meetingrepo "mailagent-backend/internal/meeting/repository"
)

// FeedbackAgent records a rating for an existing meeting
type FeedbackAgent struct {
	meetings meetingrepo.MeetingRepository
}

func (a *FeedbackAgent) Handle(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
	j, ok := job.(dispatch.FeedbackJob)
	if !ok {
		return nil, unexpectedJob(dispatch.KindFeedback, job)
	}
	if !meetingdomain.ValidRating(j.Rating) {
		return nil, meetingdomain.ErrInvalidRating
	}

	meeting, err := a.meetings.FindByID(j.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("find meeting: %w", err)
	}
	if meeting == nil {
		return nil, fmt.Errorf("meeting %d: %w", j.MeetingID, meetingdomain.ErrMeetingNotFound)
	}

	return &dispatch.Outcome{
		Feedback: &meetingdomain.Feedback{
			MeetingID: meeting.ID,
			Rating:    j.Rating,
			Comments:  j.Comments,
		},
	}, nil
}
