package usecase

import (
	"context"

	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/internal/email/sweeper"
)

// EmailUsecase defines the interface for mail processing use cases
type EmailUsecase interface {
	// ProcessEmails runs one sweep synchronously
	ProcessEmails(ctx context.Context) (sweeper.Report, error)
	// ListSentiment returns sentiment records, newest first
	ListSentiment(limit int) ([]*emaildomain.Sentiment, error)
	// ListFailures returns permanently failed messages, newest first
	ListFailures(limit int) ([]*emaildomain.ProcessedMessage, error)
	// RetryFailure re-arms a failed message and returns its new ticket id
	RetryFailure(ctx context.Context, msgID string) (string, error)
}
