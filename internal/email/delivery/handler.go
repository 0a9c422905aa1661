package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	emaildto "mailagent-backend/internal/email/dto"
	"mailagent-backend/internal/email/sweeper"
	"mailagent-backend/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

type EmailHandler struct {
	emailUsecase usecase.EmailUsecase
}

func NewEmailHandler(emailUsecase usecase.EmailUsecase) *EmailHandler {
	return &EmailHandler{
		emailUsecase: emailUsecase,
	}
}

// ProcessEmails runs one sweep and waits for it
// POST /process_emails
func (h *EmailHandler) ProcessEmails(c *gin.Context) {
	report, err := h.emailUsecase.ProcessEmails(c.Request.Context())
	if errors.Is(err, sweeper.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}

	c.JSON(http.StatusOK, emaildto.ProcessEmailsResponse{Message: report.Message(), Report: report})
}

// GetSentimentEmails lists sentiment records as a plain array
// GET /sentiment/emails?limit=100
func (h *EmailHandler) GetSentimentEmails(c *gin.Context) {
	records, err := h.emailUsecase.ListSentiment(queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetFailures lists permanently failed messages
// GET /failures
func (h *EmailHandler) GetFailures(c *gin.Context) {
	failures, err := h.emailUsecase.ListFailures(queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.FailuresResponse{Failures: failures})
}

// RetryFailure re-arms one failed message
// POST /failures/:msg_id/retry
func (h *EmailHandler) RetryFailure(c *gin.Context) {
	msgID := c.Param("msg_id")

	ticketID, err := h.emailUsecase.RetryFailure(c.Request.Context(), msgID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, usecase.ErrNotFailed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, emaildto.RetryResponse{
		Message:  fmt.Sprintf("Message %s queued for retry", msgID),
		TicketID: ticketID,
	})
}

func queryLimit(c *gin.Context) int {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}
