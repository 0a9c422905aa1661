package delivery

import (
	"errors"
	"mailagent-backend/internal/task/usecase"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskUsecase usecase.TaskUsecase
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskUsecase usecase.TaskUsecase) *TaskHandler {
	return &TaskHandler{
		taskUsecase: taskUsecase,
	}
}

// UpdateTaskStatusRequest represents the request body for a status change
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GetTasks returns tasks as a plain list
// GET /tasks?status=pending&limit=50&offset=0
func (h *TaskHandler) GetTasks(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var statusPtr *string
	if status != "" {
		statusPtr = &status
	}

	tasks, total, err := h.taskUsecase.GetTasks(statusPtr, limit, offset)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, tasks)
}

// GetTaskByID returns a specific task
// GET /tasks/:id
func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	task, err := h.taskUsecase.GetTaskByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

// UpdateTaskStatus changes the status of a task
// PATCH /tasks/:id
func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	var req UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.UpdateTaskStatus(c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, usecase.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, task)
}
