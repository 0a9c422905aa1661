package agent

import (
	"context"
	"fmt"
	"time"

	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	meetingrepo "mailagent-backend/internal/meeting/repository"
	"mailagent-backend/pkg/ai"
	"mailagent-backend/pkg/fuzzy"
)

// RescheduleAgent moves a meeting to the time named in the message. The
// meeting is the one the message names by id, else the sender's active
// meeting whose title the message mentions, else their latest one.
const maxRescheduleCandidates = 20

type RescheduleAgent struct {
	analyzer ai.Analyzer
	meetings meetingrepo.MeetingRepository
	now      func() time.Time
}

func (a *RescheduleAgent) Handle(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
	j, ok := job.(dispatch.RescheduleJob)
	if !ok {
		return nil, unexpectedJob(dispatch.KindReschedule, job)
	}
	msg := j.Msg

	var meeting *meetingdomain.Meeting
	var err error
	if j.MeetingID != 0 {
		meeting, err = a.meetings.FindByID(j.MeetingID)
	} else {
		meeting, err = a.senderMeeting(msg)
	}
	if err != nil {
		return nil, fmt.Errorf("find meeting: %w", err)
	}
	if meeting == nil {
		if j.MeetingID != 0 {
			return &dispatch.Outcome{Summary: fmt.Sprintf("Meeting %d was not found; nothing to reschedule.", j.MeetingID)}, nil
		}
		return &dispatch.Outcome{Summary: fmt.Sprintf("No active meeting found for %s; nothing to reschedule.", msg.From)}, nil
	}
	if meeting.Status == meetingdomain.MeetingStatusCanceled {
		return &dispatch.Outcome{Summary: fmt.Sprintf("Meeting %d is canceled and cannot be rescheduled.", meeting.ID)}, nil
	}

	ext, err := a.analyzer.ExtractMeeting(ctx, msg.Text())
	if err != nil {
		return nil, fmt.Errorf("extract new time: %w", err)
	}
	if ext.Start == nil {
		return &dispatch.Outcome{Summary: fmt.Sprintf("No new time found in the request; meeting %d is unchanged.", meeting.ID)}, nil
	}

	duration := meeting.EndTime.Sub(meeting.StartTime)
	if duration <= 0 {
		duration = defaultMeetingDuration
	}
	return &dispatch.Outcome{
		Reschedule: &dispatch.Reschedule{
			MeetingID: meeting.ID,
			Start:     *ext.Start,
			End:       ext.Start.Add(duration),
		},
	}, nil
}

func (a *RescheduleAgent) senderMeeting(msg *emaildomain.Message) (*meetingdomain.Meeting, error) {
	candidates, err := a.meetings.ActiveFor(msg.From, maxRescheduleCandidates)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}

	titles := make([]string, len(candidates))
	for i, m := range candidates {
		titles[i] = m.Title
	}
	if best := fuzzy.BestTitle(msg.Text(), titles); best >= 0 {
		return candidates[best], nil
	}
	return candidates[0], nil
}
