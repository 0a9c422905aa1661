package usecase

import (
	"context"
	"errors"

	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/internal/email/repository"
	"mailagent-backend/internal/email/sweeper"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotFailed       = errors.New("message has not failed")
)

// Sweeper runs one sweep on demand
type Sweeper interface {
	RunOnce(ctx context.Context) (sweeper.Report, error)
}

// Retrier re-arms permanently failed messages
type Retrier interface {
	Retry(ctx context.Context, msgID string) (*dispatch.Ticket, error)
}

type emailUsecase struct {
	sweeper    Sweeper
	retrier    Retrier
	sentiments repository.SentimentRepository
	ledger     repository.ProcessedMessageRepository
}

// NewEmailUsecase creates a new instance of EmailUsecase
func NewEmailUsecase(sweeper Sweeper, retrier Retrier, sentiments repository.SentimentRepository, ledger repository.ProcessedMessageRepository) EmailUsecase {
	return &emailUsecase{
		sweeper:    sweeper,
		retrier:    retrier,
		sentiments: sentiments,
		ledger:     ledger,
	}
}

func (u *emailUsecase) ProcessEmails(ctx context.Context) (sweeper.Report, error) {
	return u.sweeper.RunOnce(ctx)
}

func (u *emailUsecase) ListSentiment(limit int) ([]*emaildomain.Sentiment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.sentiments.List(limit)
}

func (u *emailUsecase) ListFailures(limit int) ([]*emaildomain.ProcessedMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.ledger.ListFailed(limit)
}

func (u *emailUsecase) RetryFailure(ctx context.Context, msgID string) (string, error) {
	ticket, err := u.retrier.Retry(ctx, msgID)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnknownMessage):
			return "", ErrMessageNotFound
		case errors.Is(err, dispatch.ErrNotFailed):
			return "", ErrNotFailed
		}
		return "", err
	}
	return ticket.ID, nil
}
