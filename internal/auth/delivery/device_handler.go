package delivery

import (
	"log"
	"net/http"

	authdto "mailagent-backend/internal/auth/dto"
	"mailagent-backend/internal/auth/repository"

	"github.com/gin-gonic/gin"
)

// DeviceHandler registers operator devices for push alerts
type DeviceHandler struct {
	fcmRepo repository.FCMTokenRepository
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(fcmRepo repository.FCMTokenRepository) *DeviceHandler {
	return &DeviceHandler{fcmRepo: fcmRepo}
}

// RegisterDevice stores a device token
// POST /operator/devices
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req authdto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.fcmRepo.SaveToken(req.Token, req.DeviceInfo); err != nil {
		log.Printf("[Device] Failed to save device token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device registered"})
}

// ListDevices lists registered devices
// GET /operator/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.fcmRepo.ListDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
