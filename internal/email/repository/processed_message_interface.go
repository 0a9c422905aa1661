package repository

import (
	"time"

	emaildomain "mailagent-backend/internal/email/domain"
)

// ProcessedMessageRepository is the dispatcher's idempotency ledger
type ProcessedMessageRepository interface {
	// Accept records msg as pending under ticketID unless a row for its id
	// already exists. Returns the stored row and whether it was just created.
	Accept(msg *emaildomain.Message, kind, ticketID string) (*emaildomain.ProcessedMessage, bool, error)
	// Get returns the ledger row for a message id, or nil if none exists
	Get(msgID string) (*emaildomain.ProcessedMessage, error)
	// MarkDone records a successful outcome
	MarkDone(msgID, result string, attempts int) error
	// MarkFailed records a permanent failure; the row is excluded from automatic retry
	MarkFailed(msgID, lastError string, attempts int) error
	// Rearm moves a failed row back to pending under a new ticket
	Rearm(msgID, ticketID string) error
	// ListFailed returns permanently failed rows, newest first
	ListFailed(limit int) ([]*emaildomain.ProcessedMessage, error)
	// ListStalePending returns pending rows not touched since before
	ListStalePending(before time.Time, limit int) ([]*emaildomain.ProcessedMessage, error)
}
