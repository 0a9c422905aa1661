package repository

import (
	"errors"
	"mailagent-backend/internal/task/domain"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormTaskRepository implements TaskRepository using GORM
type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based TaskRepository
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Insert(task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(task).Error
}

func (r *gormTaskRepository) FindByID(id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByMsgID(msgID string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("msg_id = ?", msgID).Order("created_at ASC, id ASC").Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) List(status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error) {
	var tasks []*domain.Task
	var total int64

	query := r.db.Model(&domain.Task{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC, id ASC").Limit(limit).Offset(offset).Find(&tasks).Error
	return tasks, total, err
}

func (r *gormTaskRepository) UpdateStatus(id string, status domain.TaskStatus) error {
	result := r.db.Model(&domain.Task{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormTaskRepository) FindDueReminders(before time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("due_date IS NOT NULL AND due_date <= ? AND reminder_sent = ? AND status != ?",
		before, false, domain.TaskStatusCompleted).Order("due_date ASC").Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) MarkReminderSent(id string) error {
	return r.db.Model(&domain.Task{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reminder_sent": true,
			"updated_at":    time.Now(),
		}).Error
}
