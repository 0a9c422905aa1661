package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"mailagent-backend/internal/meeting/domain"
	"mailagent-backend/internal/meeting/usecase"

	"github.com/gin-gonic/gin"
)

// MeetingHandler handles meeting and feedback HTTP requests
type MeetingHandler struct {
	meetingUsecase usecase.MeetingUsecase
}

// NewMeetingHandler creates a new MeetingHandler
func NewMeetingHandler(meetingUsecase usecase.MeetingUsecase) *MeetingHandler {
	return &MeetingHandler{meetingUsecase: meetingUsecase}
}

// TextRequest carries free text to interpret
type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

// CancelRequest names the meeting to cancel
type CancelRequest struct {
	MeetingID uint `json:"meeting_id" binding:"required"`
}

// FeedbackRequest is a rating for a meeting
type FeedbackRequest struct {
	MeetingID uint   `json:"meeting_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Comments  string `json:"comments"`
}

// Schedule creates a meeting from free text
// POST /schedule
func (h *MeetingHandler) Schedule(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.meetingUsecase.Schedule(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Reschedule moves a meeting described in free text
// POST /reschedule
func (h *MeetingHandler) Reschedule(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.meetingUsecase.Reschedule(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Cancel cancels a meeting. Canceling twice answers the same way.
// POST /cancel
func (h *MeetingHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.meetingUsecase.Cancel(req.MeetingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// SubmitFeedback records a rating
// POST /feedback
func (h *MeetingHandler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.meetingUsecase.SubmitFeedback(c.Request.Context(), req.MeetingID, req.Rating, req.Comments)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// ListMeetings returns all meetings, newest first
// GET /meetings
func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	meetings, err := h.meetingUsecase.ListMeetings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

// GetMeeting returns a meeting with its feedback
// GET /meeting/:id
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	meeting, feedback, err := h.meetingUsecase.GetMeeting(uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting": meeting, "feedback": feedback})
}

// ListFeedback returns all feedback, newest first
// GET /feedback
func (h *MeetingHandler) ListFeedback(c *gin.Context) {
	feedback, err := h.meetingUsecase.ListFeedback()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": feedback})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrEmptyText), errors.Is(err, domain.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
