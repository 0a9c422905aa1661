package repository

import (
	"mailagent-backend/internal/task/domain"
	"time"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Insert stores a task. Inserting an id that already exists is a no-op,
	// so replaying the same message never duplicates its tasks.
	Insert(task *domain.Task) error

	// FindByID finds a task by its ID
	FindByID(id string) (*domain.Task, error)

	// FindByMsgID returns the tasks derived from one message
	FindByMsgID(msgID string) ([]*domain.Task, error)

	// List returns tasks newest first with an optional status filter
	List(status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error)

	// UpdateStatus changes a task's status
	UpdateStatus(id string, status domain.TaskStatus) error

	// FindDueReminders returns open tasks due before the given time that
	// have not been announced yet
	FindDueReminders(before time.Time) ([]*domain.Task, error)

	// MarkReminderSent marks a task's reminder as sent
	MarkReminderSent(id string) error
}
