package api

import (
	"net/http"

	"mailagent-backend/pkg/ai"

	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes runtime-configurable AI settings
type SettingsHandler struct {
	ollama *ai.OllamaService
}

// NewSettingsHandler creates a SettingsHandler
func NewSettingsHandler(ollama *ai.OllamaService) *SettingsHandler {
	return &SettingsHandler{ollama: ollama}
}

// UpdateOllamaSettingsRequest represents the request body for updating Ollama settings
type UpdateOllamaSettingsRequest struct {
	OllamaBaseURL string `json:"ollama_base_url" binding:"required"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

// GetOllamaSettings returns current Ollama configuration
// GET /settings/ollama
func (h *SettingsHandler) GetOllamaSettings(c *gin.Context) {
	baseURL, model := h.ollama.Endpoint()
	c.JSON(http.StatusOK, gin.H{
		"ollama_base_url": baseURL,
		"ollama_model":    model,
	})
}

// UpdateOllamaSettings points the analyzer at another Ollama server
// PUT /settings/ollama
func (h *SettingsHandler) UpdateOllamaSettings(c *gin.Context) {
	var req UpdateOllamaSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.ollama.SetEndpoint(req.OllamaBaseURL, req.OllamaModel)
	baseURL, model := h.ollama.Endpoint()

	c.JSON(http.StatusOK, gin.H{
		"message":         "Ollama settings updated successfully",
		"ollama_base_url": baseURL,
		"ollama_model":    model,
	})
}

// TestOllamaConnection tests if the Ollama server is reachable
// POST /settings/ollama/test
func (h *SettingsHandler) TestOllamaConnection(c *gin.Context) {
	var req struct {
		OllamaBaseURL string `json:"ollama_base_url"`
	}
	// If no body provided, use current config
	_ = c.ShouldBindJSON(&req)
	if req.OllamaBaseURL == "" {
		req.OllamaBaseURL, _ = h.ollama.Endpoint()
	}

	if err := h.ollama.Ping(c.Request.Context(), req.OllamaBaseURL); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       true,
		"ollama_base_url": req.OllamaBaseURL,
	})
}
