package api

import (
	"net/http"

	authDelivery "mailagent-backend/internal/auth/delivery"
	authRepo "mailagent-backend/internal/auth/repository"
	authUsecase "mailagent-backend/internal/auth/usecase"
	emailDelivery "mailagent-backend/internal/email/delivery"
	emailUsecasePkg "mailagent-backend/internal/email/usecase"
	meetingDelivery "mailagent-backend/internal/meeting/delivery"
	meetingUsecasePkg "mailagent-backend/internal/meeting/usecase"
	taskDelivery "mailagent-backend/internal/task/delivery"
	taskUsecasePkg "mailagent-backend/internal/task/usecase"
	"mailagent-backend/pkg/ai"

	"github.com/gin-gonic/gin"
)

// Deps are the use cases and sources served over HTTP. AuthUsecase and
// Ollama are optional.
type Deps struct {
	AuthUsecase    authUsecase.AuthUsecase
	EmailUsecase   emailUsecasePkg.EmailUsecase
	MeetingUsecase meetingUsecasePkg.MeetingUsecase
	TaskUsecase    taskUsecasePkg.TaskUsecase
	Devices        authRepo.FCMTokenRepository
	Ollama         *ai.OllamaService
	Health         HealthSources
}

type Handler struct {
	authUsecase     authUsecase.AuthUsecase
	emailHandler    *emailDelivery.EmailHandler
	meetingHandler  *meetingDelivery.MeetingHandler
	taskHandler     *taskDelivery.TaskHandler
	deviceHandler   *authDelivery.DeviceHandler
	settingsHandler *SettingsHandler
	healthHandler   *HealthHandler
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		authUsecase:    deps.AuthUsecase,
		emailHandler:   emailDelivery.NewEmailHandler(deps.EmailUsecase),
		meetingHandler: meetingDelivery.NewMeetingHandler(deps.MeetingUsecase),
		taskHandler:    taskDelivery.NewTaskHandler(deps.TaskUsecase),
		healthHandler:  NewHealthHandler(deps.Health),
	}
	if deps.Devices != nil {
		h.deviceHandler = authDelivery.NewDeviceHandler(deps.Devices)
	}
	if deps.Ollama != nil {
		h.settingsHandler = NewSettingsHandler(deps.Ollama)
	}
	return h
}

// Router builds the gin engine with CORS and every route registered
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)
	return r
}

// Server wraps the router in an http.Server so the caller can shut it down
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}
}
