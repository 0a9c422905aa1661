package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCursorTooOld is returned by a MailProvider when the requested cursor is
// no longer retained upstream and incremental sync must be rebaselined.
var ErrCursorTooOld = errors.New("mail cursor is too old")

// Message is an inbound mail event. It is immutable once fetched.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	FromName   string    `json:"from_name"`
	To         []string  `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Text renders the message the way worker agents consume it.
func (m *Message) Text() string {
	return "Subject: " + m.Subject + "\n\n" + m.Body
}

// MailProvider is the incremental mail source the listener and sweeper poll.
type MailProvider interface {
	// GetCursor returns the provider's current position in the mail stream.
	GetCursor(ctx context.Context) (Cursor, error)
	// FetchSince returns messages that arrived after cursor, in arrival order,
	// together with the cursor to resume from.
	FetchSince(ctx context.Context, cursor Cursor) ([]*Message, Cursor, error)
	// ListRecent returns recent inbox messages regardless of any cursor.
	ListRecent(ctx context.Context, limit int) ([]*Message, error)
}
