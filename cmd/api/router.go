package api

import (
	"mailagent-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	// Health check (no auth required)
	r.GET("/health", h.healthHandler.Health)

	api := r.Group("")
	if h.authUsecase != nil {
		api.Use(delivery.AuthMiddleware(h.authUsecase))
	}

	// Meeting routes
	api.POST("/schedule", h.meetingHandler.Schedule)
	api.POST("/reschedule", h.meetingHandler.Reschedule)
	api.POST("/cancel", h.meetingHandler.Cancel)
	api.POST("/feedback", h.meetingHandler.SubmitFeedback)
	api.GET("/feedback", h.meetingHandler.ListFeedback)
	api.GET("/meetings", h.meetingHandler.ListMeetings)
	api.GET("/meeting/:id", h.meetingHandler.GetMeeting)

	// Email routes
	api.POST("/process_emails", h.emailHandler.ProcessEmails)
	api.GET("/sentiment/emails", h.emailHandler.GetSentimentEmails)
	api.GET("/failures", h.emailHandler.GetFailures)
	api.POST("/failures/:msg_id/retry", h.emailHandler.RetryFailure)

	// Task routes
	tasks := api.Group("/tasks")
	{
		tasks.GET("", h.taskHandler.GetTasks)
		tasks.GET("/:id", h.taskHandler.GetTaskByID)
		tasks.PATCH("/:id", h.taskHandler.UpdateTaskStatus)
	}

	// Operator devices for push alerts
	if h.deviceHandler != nil {
		devices := api.Group("/operator/devices")
		{
			devices.GET("", h.deviceHandler.ListDevices)
			devices.POST("", h.deviceHandler.RegisterDevice)
		}
	}

	// Settings routes - runtime configuration
	if h.settingsHandler != nil {
		settings := api.Group("/settings")
		{
			settings.GET("/ollama", h.settingsHandler.GetOllamaSettings)
			settings.PUT("/ollama", h.settingsHandler.UpdateOllamaSettings)
			settings.POST("/ollama/test", h.settingsHandler.TestOllamaConnection)
		}
	}
}
