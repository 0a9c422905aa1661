package domain

import "time"

// ProcessingStatus is the ledger state of one message id.
type ProcessingStatus string

const (
	StatusPending ProcessingStatus = "pending"
	StatusDone    ProcessingStatus = "done"
	StatusFailed  ProcessingStatus = "failed"
)

// ProcessedMessage tracks every message handed to the dispatcher so that
// duplicate submissions are no-ops and crashed work can be resubmitted.
type ProcessedMessage struct {
	MsgID      string           `json:"msg_id" gorm:"primaryKey"`
	Kind       string           `json:"kind" gorm:"not null"`
	TicketID   string           `json:"ticket_id" gorm:"not null"`
	Status     ProcessingStatus `json:"status" gorm:"index;not null"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty" gorm:"type:text"`
	Result     string           `json:"result,omitempty" gorm:"type:text"`
	Subject    string           `json:"subject"`
	From       string           `json:"from"`
	Body       string           `json:"-" gorm:"type:text"`
	ReceivedAt time.Time        `json:"received_at"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

// ToMessage rebuilds the message captured at acceptance time.
func (p *ProcessedMessage) ToMessage() *Message {
	return &Message{
		ID:         p.MsgID,
		Subject:    p.Subject,
		From:       p.From,
		Body:       p.Body,
		ReceivedAt: p.ReceivedAt,
	}
}
