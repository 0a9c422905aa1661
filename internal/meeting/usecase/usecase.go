package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/internal/meeting/domain"
	"mailagent-backend/internal/meeting/repository"

	"github.com/google/uuid"
)

var ErrEmptyText = errors.New("text is required")

// JobSubmitter runs on-demand jobs through the dispatcher
type JobSubmitter interface {
	SubmitJob(ctx context.Context, job dispatch.Job) (*dispatch.Ticket, error)
}

// MeetingUsecase is the API-facing side of meetings. Requests that derive
// data from free text go through the dispatcher like mail does.
type MeetingUsecase interface {
	Schedule(ctx context.Context, text string) (string, error)
	Reschedule(ctx context.Context, text string) (string, error)
	Cancel(id uint) (string, error)
	SubmitFeedback(ctx context.Context, meetingID uint, rating int, comments string) (string, error)
	ListMeetings() ([]*domain.Meeting, error)
	GetMeeting(id uint) (*domain.Meeting, []*domain.Feedback, error)
	ListFeedback() ([]*domain.Feedback, error)
}

type meetingUsecase struct {
	meetings  repository.MeetingRepository
	submitter JobSubmitter
	requester string
	now       func() time.Time
}

// NewMeetingUsecase creates a MeetingUsecase. requester is recorded as the
// sender of API-originated requests.
func NewMeetingUsecase(meetings repository.MeetingRepository, submitter JobSubmitter, requester string) MeetingUsecase {
	return &meetingUsecase{
		meetings:  meetings,
		submitter: submitter,
		requester: requester,
		now:       time.Now,
	}
}

func (u *meetingUsecase) Schedule(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return u.run(ctx, dispatch.ScheduleJob{Msg: u.message(dispatch.KindSchedule, text)})
}

func (u *meetingUsecase) Reschedule(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return u.run(ctx, dispatch.Rebuild(dispatch.KindReschedule, u.message(dispatch.KindReschedule, text)))
}

func (u *meetingUsecase) Cancel(id uint) (string, error) {
	if _, _, err := u.meetings.UpdateMeetingStatus(id, domain.MeetingStatusCanceled); err != nil {
		return "", err
	}
	return fmt.Sprintf("Meeting %d canceled successfully.", id), nil
}

func (u *meetingUsecase) SubmitFeedback(ctx context.Context, meetingID uint, rating int, comments string) (string, error) {
	if !domain.ValidRating(rating) {
		return "", domain.ErrInvalidRating
	}
	meeting, err := u.meetings.FindByID(meetingID)
	if err != nil {
		return "", err
	}
	if meeting == nil {
		return "", domain.ErrMeetingNotFound
	}

	// The body is phrased so a retry rebuilds the same job from the ledger
	text := fmt.Sprintf("Feedback for meeting %d: rating %d/5. Comments: %s", meetingID, rating, comments)
	return u.run(ctx, dispatch.FeedbackJob{
		Msg:       u.message(dispatch.KindFeedback, text),
		MeetingID: meetingID,
		Rating:    rating,
		Comments:  comments,
	})
}

func (u *meetingUsecase) ListMeetings() ([]*domain.Meeting, error) {
	return u.meetings.List()
}

func (u *meetingUsecase) GetMeeting(id uint) (*domain.Meeting, []*domain.Feedback, error) {
	meeting, err := u.meetings.FindByID(id)
	if err != nil {
		return nil, nil, err
	}
	if meeting == nil {
		return nil, nil, domain.ErrMeetingNotFound
	}
	feedback, err := u.meetings.ListFeedbackByMeeting(id)
	if err != nil {
		return nil, nil, err
	}
	return meeting, feedback, nil
}

func (u *meetingUsecase) ListFeedback() ([]*domain.Feedback, error) {
	return u.meetings.ListFeedback()
}

func (u *meetingUsecase) message(kind dispatch.Kind, text string) *emaildomain.Message {
	return &emaildomain.Message{
		ID:         fmt.Sprintf("api-%s-%s", kind, uuid.NewString()),
		From:       u.requester,
		Body:       text,
		ReceivedAt: u.now(),
	}
}

// run submits job and waits for its result
func (u *meetingUsecase) run(ctx context.Context, job dispatch.Job) (string, error) {
	ticket, err := u.submitter.SubmitJob(ctx, job)
	if err != nil {
		return "", err
	}
	result, err := ticket.Wait(ctx)
	if err != nil {
		return "", err
	}
	return result.Summary, nil
}
