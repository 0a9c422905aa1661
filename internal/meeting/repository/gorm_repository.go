package repository

import (
	"errors"
	"time"

	"mailagent-backend/internal/meeting/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxStatusAttempts bounds compare-and-set retries when another writer
// changes the status between read and update
const maxStatusAttempts = 3

// gormMeetingRepository implements MeetingRepository using GORM
type gormMeetingRepository struct {
	db *gorm.DB
}

// NewGormMeetingRepository creates a new GORM-based MeetingRepository
func NewGormMeetingRepository(db *gorm.DB) MeetingRepository {
	return &gormMeetingRepository{db: db}
}

func (r *gormMeetingRepository) UpsertMeeting(meeting *domain.Meeting) (*domain.Meeting, error) {
	now := time.Now()
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = now
	}
	meeting.UpdatedAt = now

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(meeting)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return meeting, nil
	}

	var stored domain.Meeting
	if err := r.db.Where("source_msg_id = ?", meeting.SourceMsgID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormMeetingRepository) FindByID(id uint) (*domain.Meeting, error) {
	var meeting domain.Meeting
	err := r.db.Where("id = ?", id).First(&meeting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

func (r *gormMeetingRepository) List() ([]*domain.Meeting, error) {
	var meetings []*domain.Meeting
	err := r.db.Order("created_at DESC, id DESC").Find(&meetings).Error
	return meetings, err
}

func (r *gormMeetingRepository) FindConfirmedOverlapping(start, end time.Time, excludeID uint) ([]*domain.Meeting, error) {
	var meetings []*domain.Meeting
	err := r.db.Where("status = ? AND start_time < ? AND end_time > ? AND id <> ?",
		domain.MeetingStatusConfirmed, end, start, excludeID).
		Order("start_time ASC").Find(&meetings).Error
	return meetings, err
}

func (r *gormMeetingRepository) ActiveFor(email string, limit int) ([]*domain.Meeting, error) {
	var meetings []*domain.Meeting
	err := r.db.Where("status <> ? AND (organizer = ? OR participants LIKE ?)",
		domain.MeetingStatusCanceled, email, "%\""+email+"\"%").
		Order("created_at DESC, id DESC").Limit(limit).Find(&meetings).Error
	return meetings, err
}

func (r *gormMeetingRepository) UpdateMeetingStatus(id uint, status domain.MeetingStatus) (*domain.Meeting, bool, error) {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		meeting, err := r.FindByID(id)
		if err != nil {
			return nil, false, err
		}
		if meeting == nil {
			return nil, false, domain.ErrMeetingNotFound
		}
		if meeting.Status == status {
			return meeting, false, nil
		}
		if !meeting.Status.CanTransitionTo(status) {
			return meeting, false, domain.ErrInvalidTransition
		}

		now := time.Now()
		result := r.db.Model(&domain.Meeting{}).
			Where("id = ? AND status = ?", id, meeting.Status).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, false, result.Error
		}
		if result.RowsAffected == 1 {
			meeting.Status = status
			meeting.UpdatedAt = now
			return meeting, true, nil
		}
	}
	return nil, false, domain.ErrInvalidTransition
}

func (r *gormMeetingRepository) Reschedule(id uint, start, end time.Time) (*domain.Meeting, error) {
	meeting, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, domain.ErrMeetingNotFound
	}
	if !meeting.Status.CanTransitionTo(domain.MeetingStatusProposed) {
		return meeting, domain.ErrInvalidTransition
	}

	now := time.Now()
	result := r.db.Model(&domain.Meeting{}).
		Where("id = ? AND status <> ?", id, domain.MeetingStatusCanceled).
		Updates(map[string]interface{}{
			"status":     domain.MeetingStatusProposed,
			"start_time": start,
			"end_time":   end,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrInvalidTransition
	}

	meeting.Status = domain.MeetingStatusProposed
	meeting.StartTime = start
	meeting.EndTime = end
	meeting.UpdatedAt = now
	return meeting, nil
}

func (r *gormMeetingRepository) InsertFeedback(feedback *domain.Feedback) (*domain.Feedback, bool, error) {
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now()
	}

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(feedback)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return feedback, true, nil
	}

	var stored domain.Feedback
	if err := r.db.Where("source_msg_id = ?", feedback.SourceMsgID).First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

func (r *gormMeetingRepository) ListFeedback() ([]*domain.Feedback, error) {
	var feedback []*domain.Feedback
	err := r.db.Order("created_at DESC, id DESC").Find(&feedback).Error
	return feedback, err
}

func (r *gormMeetingRepository) ListFeedbackByMeeting(meetingID uint) ([]*domain.Feedback, error) {
	var feedback []*domain.Feedback
	err := r.db.Where("meeting_id = ?", meetingID).Order("created_at DESC, id DESC").Find(&feedback).Error
	return feedback, err
}

func (r *gormMeetingRepository) AverageRating(organizer string) (float64, int64, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := r.db.Model(&domain.Feedback{}).
		Select("COALESCE(AVG(feedback.rating), 0) AS avg, COUNT(feedback.id) AS count").
		Joins("JOIN meetings ON meetings.id = feedback.meeting_id").
		Where("meetings.organizer = ?", organizer).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Avg, row.Count, nil
}
