package dispatch

import (
	"context"
	"encoding/json"
	"sync"
)

// Result is what a completed job reports back to whoever holds its ticket.
// It is also cached in the ledger so duplicates can answer without redoing
// the work.
type Result struct {
	Summary       string   `json:"summary"`
	MeetingID     uint     `json:"meeting_id,omitempty"`
	MeetingStatus string   `json:"meeting_status,omitempty"`
	FeedbackID    uint     `json:"feedback_id,omitempty"`
	Sentiment     string   `json:"sentiment,omitempty"`
	TaskIDs       []string `json:"task_ids,omitempty"`
}

func (r *Result) encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return r.Summary
	}
	return string(b)
}

func decodeResult(raw string) *Result {
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return &Result{Summary: raw}
	}
	return &r
}

// Ticket is the handle for an accepted job
type Ticket struct {
	ID    string
	MsgID string
	Kind  Kind

	// Cached is true when the ticket was answered from the ledger
	Cached bool

	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

func newTicket(id, msgID string, kind Kind) *Ticket {
	return &Ticket{ID: id, MsgID: msgID, Kind: kind, done: make(chan struct{})}
}

func (t *Ticket) resolve(result *Result, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// Done is closed once the job has finished
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the job finishes or ctx is done
func (t *Ticket) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
