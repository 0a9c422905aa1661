package usecase

import (
	"errors"
	"mailagent-backend/internal/task/domain"
	"mailagent-backend/internal/task/repository"

	"gorm.io/gorm"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidStatus = errors.New("invalid task status")
)

// TaskUsecase defines the interface for task business logic
type TaskUsecase interface {
	// GetTasks lists tasks newest first with an optional status filter
	GetTasks(status *string, limit, offset int) ([]*domain.Task, int64, error)

	// GetTaskByID retrieves a task by ID
	GetTaskByID(taskID string) (*domain.Task, error)

	// UpdateTaskStatus moves a task to a new status
	UpdateTaskStatus(taskID, status string) (*domain.Task, error)
}

type taskUsecase struct {
	taskRepo repository.TaskRepository
}

// NewTaskUsecase creates a new TaskUsecase
func NewTaskUsecase(taskRepo repository.TaskRepository) TaskUsecase {
	return &taskUsecase{taskRepo: taskRepo}
}

func (u *taskUsecase) GetTasks(status *string, limit, offset int) ([]*domain.Task, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var statusPtr *domain.TaskStatus
	if status != nil {
		s := domain.TaskStatus(*status)
		if !s.Valid() {
			return nil, 0, ErrInvalidStatus
		}
		statusPtr = &s
	}

	tasks, total, err := u.taskRepo.List(statusPtr, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, total, nil
}

func (u *taskUsecase) GetTaskByID(taskID string) (*domain.Task, error) {
	task, err := u.taskRepo.FindByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (u *taskUsecase) UpdateTaskStatus(taskID, status string) (*domain.Task, error) {
	s := domain.TaskStatus(status)
	if !s.Valid() {
		return nil, ErrInvalidStatus
	}

	if err := u.taskRepo.UpdateStatus(taskID, s); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return u.GetTaskByID(taskID)
}
