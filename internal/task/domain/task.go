package domain

import (
	"time"

	"mailagent-backend/pkg/dbtypes"
)

// Priority represents task priority level
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task is an action item extracted from a message. Tasks only come into
// existence as a side effect of message classification.
type Task struct {
	ID           string              `json:"id" gorm:"primaryKey"`
	MsgID        string              `json:"msg_id" gorm:"index;not null"`
	Title        string              `json:"title" gorm:"not null"`
	Project      string              `json:"project,omitempty"`
	Assignees    dbtypes.StringArray `json:"assignees" gorm:"type:text"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
	Priority     Priority            `json:"priority" gorm:"default:medium"`
	Status       TaskStatus          `json:"status" gorm:"default:pending"`
	ReminderSent bool                `json:"reminder_sent" gorm:"default:false"`
	CreatedAt    time.Time           `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// TaskExtraction represents the AI-extracted task data from a message
type TaskExtraction struct {
	Title     string     `json:"title"`
	Project   string     `json:"project,omitempty"`
	Assignees []string   `json:"assignees,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Priority  Priority   `json:"priority"`
}
