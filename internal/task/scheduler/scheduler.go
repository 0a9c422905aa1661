package scheduler

import (
	"context"
	"log"
	"mailagent-backend/internal/task/repository"
	"time"
)

// Alerter receives due-task reminders
type Alerter interface {
	TaskDue(ctx context.Context, taskID, title string, due time.Time)
}

// TaskReminderScheduler announces extracted tasks once their due date arrives
type TaskReminderScheduler struct {
	taskRepo repository.TaskRepository
	alerter  Alerter
	interval time.Duration
	now      func() time.Time
}

// NewTaskReminderScheduler creates a new scheduler
func NewTaskReminderScheduler(taskRepo repository.TaskRepository, alerter Alerter, interval time.Duration) *TaskReminderScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TaskReminderScheduler{
		taskRepo: taskRepo,
		alerter:  alerter,
		interval: interval,
		now:      time.Now,
	}
}

// Run checks for due tasks until ctx is cancelled
func (s *TaskReminderScheduler) Run(ctx context.Context) error {
	log.Printf("[TaskScheduler] Starting task reminder scheduler (interval: %s)", s.interval)

	s.checkAndSendReminders(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkAndSendReminders(ctx)
		case <-ctx.Done():
			log.Println("[TaskScheduler] Scheduler stopped")
			return nil
		}
	}
}

// checkAndSendReminders returns the number of reminders sent
func (s *TaskReminderScheduler) checkAndSendReminders(ctx context.Context) int {
	tasks, err := s.taskRepo.FindDueReminders(s.now())
	if err != nil {
		log.Printf("[TaskScheduler] Error finding due tasks: %v", err)
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	log.Printf("[TaskScheduler] Found %d due tasks", len(tasks))

	sent := 0
	for _, task := range tasks {
		s.alerter.TaskDue(ctx, task.ID, task.Title, *task.DueDate)

		// Mark regardless of push success to avoid spamming
		if err := s.taskRepo.MarkReminderSent(task.ID); err != nil {
			log.Printf("[TaskScheduler] Error marking reminder as sent for task %s: %v", task.ID, err)
			continue
		}
		sent++
	}
	return sent
}
