package dto

import (
	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/internal/email/sweeper"
)

type ProcessEmailsResponse struct {
	Message string         `json:"message"`
	Report  sweeper.Report `json:"report"`
}

type FailuresResponse struct {
	Failures []*emaildomain.ProcessedMessage `json:"failures"`
}

type RetryResponse struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
}
