package repository

import (
	"time"

	"mailagent-backend/internal/meeting/domain"
)

// MeetingRepository defines the interface for meeting and feedback data access
type MeetingRepository interface {
	// UpsertMeeting stores a meeting keyed by its source message id. If a
	// meeting for that message already exists it is returned unchanged.
	UpsertMeeting(meeting *domain.Meeting) (*domain.Meeting, error)

	// FindByID returns nil when the meeting does not exist
	FindByID(id uint) (*domain.Meeting, error)

	// List returns meetings, newest first
	List() ([]*domain.Meeting, error)

	// FindConfirmedOverlapping returns confirmed meetings intersecting
	// [start, end), ignoring excludeID
	FindConfirmedOverlapping(start, end time.Time, excludeID uint) ([]*domain.Meeting, error)

	// ActiveFor returns up to limit non-canceled meetings organized by or
	// including email, newest first
	ActiveFor(email string, limit int) ([]*domain.Meeting, error)

	// UpdateMeetingStatus moves a meeting to status. changed is false when
	// the meeting already had that status.
	UpdateMeetingStatus(id uint, status domain.MeetingStatus) (meeting *domain.Meeting, changed bool, err error)

	// Reschedule moves a meeting to a new time slot and back to proposed
	Reschedule(id uint, start, end time.Time) (*domain.Meeting, error)

	// InsertFeedback appends feedback keyed by its source message id.
	// created is false when feedback for that message already exists.
	InsertFeedback(feedback *domain.Feedback) (stored *domain.Feedback, created bool, err error)

	// ListFeedback returns all feedback, newest first
	ListFeedback() ([]*domain.Feedback, error)

	// ListFeedbackByMeeting returns feedback for one meeting, newest first
	ListFeedbackByMeeting(meetingID uint) ([]*domain.Feedback, error)

	// AverageRating returns the mean rating over meetings organized by
	// organizer and the number of ratings it is based on
	AverageRating(organizer string) (float64, int64, error)
}
