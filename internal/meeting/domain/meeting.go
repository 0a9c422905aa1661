package domain

import (
	"errors"
	"time"

	"mailagent-backend/pkg/dbtypes"
)

var (
	ErrMeetingNotFound   = errors.New("meeting not found")
	ErrInvalidTransition = errors.New("invalid meeting status transition")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
)

// MeetingStatus is the lifecycle state of a meeting
type MeetingStatus string

const (
	MeetingStatusProposed  MeetingStatus = "proposed"
	MeetingStatusConfirmed MeetingStatus = "confirmed"
	MeetingStatusCanceled  MeetingStatus = "canceled"
)

// Valid reports whether s is a known status
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusProposed, MeetingStatusConfirmed, MeetingStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a meeting in status s may move to next.
// Transitions are one-directional except a reschedule, which moves a
// confirmed meeting back to proposed. Staying in the same status is allowed.
func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case MeetingStatusProposed:
		return next == MeetingStatusConfirmed || next == MeetingStatusCanceled
	case MeetingStatusConfirmed:
		return next == MeetingStatusCanceled || next == MeetingStatusProposed
	}
	return false
}

// Meeting is a scheduled meeting derived from a message or an API request
type Meeting struct {
	ID           uint                `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceMsgID  string              `json:"source_msg_id" gorm:"uniqueIndex;not null"`
	Title        string              `json:"title" gorm:"not null"`
	Organizer    string              `json:"organizer" gorm:"index"`
	Participants dbtypes.StringArray `json:"participants" gorm:"type:text"`
	StartTime    time.Time           `json:"start_time" gorm:"index"`
	EndTime      time.Time           `json:"end_time"`
	Status       MeetingStatus       `json:"status" gorm:"index;not null"`
	Notes        string              `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt    time.Time           `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Overlaps reports whether m and the interval [start, end) intersect
func (m *Meeting) Overlaps(start, end time.Time) bool {
	return m.StartTime.Before(end) && start.Before(m.EndTime)
}

// Feedback is a rating left for a meeting. Feedback rows are append-only.
type Feedback struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MeetingID   uint      `json:"meeting_id" gorm:"index;not null"`
	SourceMsgID string    `json:"source_msg_id" gorm:"uniqueIndex;not null"`
	Rating      int       `json:"rating" gorm:"not null"`
	Comments    string    `json:"comments" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// TableName pins the table name used by the HTTP surface
func (Feedback) TableName() string {
	return "feedback"
}

// ValidRating reports whether rating is on the 1..5 scale
func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
