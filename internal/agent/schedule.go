package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailagent-backend/internal/dispatch"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	meetingrepo "mailagent-backend/internal/meeting/repository"
	"mailagent-backend/pkg/ai"
)

// ScheduleAgent turns a meeting request into a meeting. A slot that
// overlaps a confirmed meeting is stored as proposed instead of confirmed.
type ScheduleAgent struct {
	analyzer  ai.Analyzer
	meetings  meetingrepo.MeetingRepository
	organizer string
	now       func() time.Time
}

func (a *ScheduleAgent) Handle(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
	j, ok := job.(dispatch.ScheduleJob)
	if !ok {
		return nil, unexpectedJob(dispatch.KindSchedule, job)
	}
	msg := j.Msg

	ext, err := a.analyzer.ExtractMeeting(ctx, msg.Text())
	if err != nil {
		return nil, fmt.Errorf("extract meeting: %w", err)
	}

	title := ext.Title
	if title == "" {
		title = msg.Subject
	}
	if title == "" {
		title = "Meeting"
	}

	start := nextSlot(a.now())
	if ext.Start != nil {
		start = *ext.Start
	}
	duration := defaultMeetingDuration
	if ext.DurationMinutes > 0 {
		duration = time.Duration(ext.DurationMinutes) * time.Minute
	}
	end := start.Add(duration)

	organizer := a.organizer
	if organizer == "" {
		organizer = msg.From
	}

	conflicts, err := a.meetings.FindConfirmedOverlapping(start, end, 0)
	if err != nil {
		return nil, fmt.Errorf("check conflicts: %w", err)
	}
	status := meetingdomain.MeetingStatusConfirmed
	if len(conflicts) > 0 {
		status = meetingdomain.MeetingStatusProposed
		log.Printf("[ScheduleAgent] %s overlaps %d confirmed meeting(s), proposing", msg.ID, len(conflicts))
	}

	return &dispatch.Outcome{
		Meeting: &meetingdomain.Meeting{
			Title:        title,
			Organizer:    organizer,
			Participants: appendUnique(nil, append(ext.Participants, msg.From)...),
			StartTime:    start,
			EndTime:      end,
			Status:       status,
		},
	}, nil
}
